package split

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Bill", func() {
	var bill *Bill

	BeforeEach(func() {
		bill = NewBill("", DefaultPercentages(), "You", "Alice")
	})

	Describe("NewBill", func() {
		It("defaults the currency", func() {
			Expect(bill.Currency).To(Equal("USD"))
		})

		It("keeps the participants in order", func() {
			Expect(bill.Participants).To(Equal([]string{"You", "Alice"}))
		})
	})

	Describe("AddParticipant", func() {
		var (
			name  string
			added bool
			err   error
		)

		JustBeforeEach(func() {
			added, err = bill.AddParticipant(name)
		})

		When("the name is new", func() {
			BeforeEach(func() {
				name = "  Bob "
			})

			It("adds the trimmed name", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(added).To(BeTrue())
				Expect(bill.Participants).To(Equal([]string{"You", "Alice", "Bob"}))
			})
		})

		When("the name already exists", func() {
			BeforeEach(func() {
				name = "Alice"
			})

			It("is a no-op", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(added).To(BeFalse())
				Expect(bill.Participants).To(HaveLen(2))
			})
		})

		When("the name is blank", func() {
			BeforeEach(func() {
				name = "   "
			})

			It("returns ErrInvalidParticipant", func() {
				Expect(err).To(MatchError(ErrInvalidParticipant))
			})
		})
	})

	Describe("items", func() {
		var item Item

		BeforeEach(func() {
			var err error
			item, err = bill.AddItem(Item{Name: "Burger", Quantity: 1, UnitPrice: 12.99})
			Expect(err).NotTo(HaveOccurred())
		})

		It("assigns an id", func() {
			Expect(item.ID).NotTo(BeEmpty())
		})

		It("rejects a duplicate id", func() {
			_, err := bill.AddItem(Item{ID: item.ID, Name: "Again"})
			Expect(err).To(MatchError(ErrDuplicateItem))
		})

		It("normalizes added items", func() {
			added, err := bill.AddItem(Item{Quantity: -3, UnitPrice: -1})
			Expect(err).NotTo(HaveOccurred())
			Expect(added.Name).To(Equal("Item 2"))
			Expect(added.Quantity).To(Equal(1))
			Expect(added.UnitPrice).To(Equal(0.0))
		})

		It("drops assignees who are not on the bill", func() {
			added, err := bill.AddItem(Item{Name: "Soup", Quantity: 1, UnitPrice: 5, AssignedTo: []string{"Alice", "Zed"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(added.AssignedTo).To(Equal([]string{"Alice"}))
		})

		Describe("UpdateItem", func() {
			It("applies the patch", func() {
				qty := 3
				updated, err := bill.UpdateItem(item.ID, ItemPatch{Quantity: &qty})
				Expect(err).NotTo(HaveOccurred())
				Expect(updated.Quantity).To(Equal(3))
				Expect(updated.Name).To(Equal("Burger"))
				Expect(updated.ID).To(Equal(item.ID))
			})

			It("re-normalizes invalid values", func() {
				name, price := "", -4.0
				updated, err := bill.UpdateItem(item.ID, ItemPatch{Name: &name, UnitPrice: &price})
				Expect(err).NotTo(HaveOccurred())
				Expect(updated.Name).To(Equal("Item 1"))
				Expect(updated.UnitPrice).To(Equal(0.0))
			})

			It("resets an out-of-range quantity", func() {
				qty := math.MaxInt32 + 1
				updated, err := bill.UpdateItem(item.ID, ItemPatch{Quantity: &qty})
				Expect(err).NotTo(HaveOccurred())
				Expect(updated.Quantity).To(Equal(1))
			})

			It("returns ErrItemNotFound for an unknown id", func() {
				_, err := bill.UpdateItem("missing", ItemPatch{})
				Expect(err).To(MatchError(ErrItemNotFound))
			})
		})

		Describe("RemoveItem", func() {
			It("removes the item", func() {
				Expect(bill.RemoveItem(item.ID)).To(Succeed())
				Expect(bill.Items).To(BeEmpty())
			})

			It("returns ErrItemNotFound for an unknown id", func() {
				Expect(bill.RemoveItem("missing")).To(MatchError(ErrItemNotFound))
			})
		})

		Describe("Assign", func() {
			It("toggles the participant on and off", func() {
				on, err := bill.Assign(item.ID, "Alice")
				Expect(err).NotTo(HaveOccurred())
				Expect(on).To(BeTrue())
				Expect(bill.ParticipantsFor(item.ID)).To(Equal([]string{"Alice"}))

				on, err = bill.Assign(item.ID, "Alice")
				Expect(err).NotTo(HaveOccurred())
				Expect(on).To(BeFalse())
				Expect(bill.ParticipantsFor(item.ID)).To(BeEmpty())
			})

			It("rejects an unknown participant", func() {
				_, err := bill.Assign(item.ID, "Zed")
				Expect(err).To(MatchError(ErrParticipantNotFound))
			})

			It("rejects an unknown item", func() {
				_, err := bill.Assign("missing", "Alice")
				Expect(err).To(MatchError(ErrItemNotFound))
			})
		})

		Describe("UnassignAll", func() {
			It("makes the item communal", func() {
				_, _ = bill.Assign(item.ID, "Alice")
				_, _ = bill.Assign(item.ID, "You")
				Expect(bill.UnassignAll(item.ID)).To(Succeed())
				Expect(bill.ParticipantsFor(item.ID)).To(BeEmpty())
			})
		})

		Describe("ParticipantsFor", func() {
			It("returns a copy", func() {
				_, _ = bill.Assign(item.ID, "Alice")
				got, err := bill.ParticipantsFor(item.ID)
				Expect(err).NotTo(HaveOccurred())
				got[0] = "Mallory"
				Expect(bill.ParticipantsFor(item.ID)).To(Equal([]string{"Alice"}))
			})
		})

		Describe("RemoveParticipant", func() {
			It("strips the participant from assignments", func() {
				_, _ = bill.Assign(item.ID, "Alice")
				Expect(bill.RemoveParticipant("Alice")).To(Succeed())
				Expect(bill.Participants).To(Equal([]string{"You"}))
				Expect(bill.ParticipantsFor(item.ID)).To(BeEmpty())
			})

			It("keeps the bill conserved afterwards", func() {
				_, _ = bill.Assign(item.ID, "Alice")
				Expect(bill.RemoveParticipant("Alice")).To(Succeed())
				res := bill.Split()
				Expect(res.Conserved()).To(BeTrue())
				Expect(res.PerParticipant).To(HaveKey("You"))
			})

			It("returns ErrParticipantNotFound for an unknown name", func() {
				Expect(bill.RemoveParticipant("Zed")).To(MatchError(ErrParticipantNotFound))
			})
		})
	})

	Describe("SetPercentages", func() {
		It("accepts values in range", func() {
			Expect(bill.SetPercentages(Percentages{Tax: 0, Tip: 0.5})).To(Succeed())
			Expect(bill.Percentages()).To(Equal(Percentages{Tax: 0, Tip: 0.5}))
		})

		It("rejects values out of range", func() {
			err := bill.SetPercentages(Percentages{Tax: 0.51, Tip: 0.1})
			Expect(err).To(MatchError(ErrPercentOutOfRange))
			Expect(bill.TaxPct).To(Equal(DefaultTaxPct))
		})
	})

	Describe("Normalize", func() {
		It("repairs a decoded bill", func() {
			b := &Bill{
				Currency:     " eur ",
				Participants: []string{"A", "A", " "},
				Items: []Item{
					{ID: "x", Name: "One", Quantity: 1, UnitPrice: 1, AssignedTo: []string{"A", "B"}},
					{ID: "x", Quantity: 0},
				},
			}
			b.Normalize()
			Expect(b.Currency).To(Equal("EUR"))
			Expect(b.Participants).To(Equal([]string{"A"}))
			Expect(b.Items[0].AssignedTo).To(Equal([]string{"A"}))
			Expect(b.Items[1].ID).NotTo(Equal("x"))
			Expect(b.Items[1].Name).To(Equal("Item 2"))
		})
	})

	Describe("Clone", func() {
		It("does not share assignment slices", func() {
			item, _ := bill.AddItem(Item{Name: "Pie", Quantity: 1, UnitPrice: 3})
			_, _ = bill.Assign(item.ID, "Alice")
			c := bill.Clone()
			c.Items[0].AssignedTo[0] = "You"
			Expect(bill.Items[0].AssignedTo).To(Equal([]string{"Alice"}))
		})
	})
})
