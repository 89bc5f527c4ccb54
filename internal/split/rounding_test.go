package split

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Rounded", func() {
	var (
		res     Result
		rounded RoundedResult
	)

	JustBeforeEach(func() {
		rounded = res.Rounded()
	})

	When("splitting the burger and fries dinner", func() {
		BeforeEach(func() {
			bill := NewBill("USD", Percentages{Tax: 0.13, Tip: 0.18}, "Alice", "Bob")
			burger, err := bill.AddItem(Item{Name: "Burger", Quantity: 1, UnitPrice: 12.99})
			Expect(err).NotTo(HaveOccurred())
			_, err = bill.AddItem(Item{Name: "Fries", Quantity: 2, UnitPrice: 4.50})
			Expect(err).NotTo(HaveOccurred())
			_, err = bill.Assign(burger.ID, "Alice")
			Expect(err).NotTo(HaveOccurred())
			res = bill.Split()
		})

		It("rounds the shares to cents", func() {
			Expect(rounded.Shares[0].Total.StringFixed(2)).To(Equal("22.91"))
			Expect(rounded.Shares[1].Total.StringFixed(2)).To(Equal("5.90"))
		})

		It("adds up to the rounded grand total", func() {
			Expect(rounded.GrandTotal.StringFixed(2)).To(Equal("28.81"))
			Expect(rounded.Sum().Equal(rounded.GrandTotal.Decimal)).To(BeTrue())
		})

		It("marshals amounts with two decimals", func() {
			data, err := json.Marshal(rounded.Shares[1])
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(MatchJSON(`{"participant":"Bob","total":"5.90"}`))
		})
	})

	When("three people share ten dollars", func() {
		BeforeEach(func() {
			res = Allocate([]Item{{ID: "x", Quantity: 1, UnitPrice: 10}}, []string{"A", "B", "C"}, 0, 0)
		})

		It("gives the leftover cent to the first participant", func() {
			Expect(rounded.Shares[0].Total.StringFixed(2)).To(Equal("3.34"))
			Expect(rounded.Shares[1].Total.StringFixed(2)).To(Equal("3.33"))
			Expect(rounded.Shares[2].Total.StringFixed(2)).To(Equal("3.33"))
			Expect(rounded.Sum().StringFixed(2)).To(Equal("10.00"))
		})
	})

	When("there are no participants", func() {
		BeforeEach(func() {
			res = Allocate([]Item{{ID: "x", Quantity: 1, UnitPrice: 4.999}}, nil, 0, 0)
		})

		It("reports the unallocated amount in cents", func() {
			Expect(rounded.Shares).To(BeEmpty())
			Expect(rounded.Unallocated.StringFixed(2)).To(Equal("5.00"))
		})
	})
})

var _ = Describe("Rounded over random bills", func() {
	It("always adds up to the displayed grand total", func() {
		rng := rand.New(rand.NewPCG(42, 7))
		names := []string{"Alice", "Bob", "Carol", "Dan"}

		for n := 0; n < 5000; n++ {
			people := names[:1+rng.IntN(len(names))]
			pct := Percentages{
				Tax: float64(rng.IntN(300)) / 1000,
				Tip: float64(rng.IntN(300)) / 1000,
			}
			bill := NewBill("USD", pct, people...)
			for i := 0; i < 1+rng.IntN(6); i++ {
				item, err := bill.AddItem(Item{
					Name:      fmt.Sprintf("Item %d", i+1),
					Quantity:  1 + rng.IntN(3),
					UnitPrice: float64(rng.IntN(50000)) / 1000,
				})
				Expect(err).NotTo(HaveOccurred())
				for _, p := range people {
					if rng.IntN(3) == 0 {
						_, err := bill.Assign(item.ID, p)
						Expect(err).NotTo(HaveOccurred())
					}
				}
			}

			rounded := bill.Split().Rounded()
			want := rounded.GrandTotal.Sub(rounded.Unallocated.Decimal)
			Expect(rounded.Sum().StringFixed(2)).To(Equal(want.StringFixed(2)),
				"bill %d: tax=%v tip=%v items=%+v", n, pct.Tax, pct.Tip, bill.Items)
			for _, share := range rounded.Shares {
				Expect(share.Total.IsNegative()).To(BeFalse())
			}
		}
	})
})

var _ = Describe("Percentages", func() {
	DescribeTable("Validate",
		func(p Percentages, valid bool) {
			err := p.Validate()
			if valid {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(ErrPercentOutOfRange))
			}
		},
		Entry("defaults", DefaultPercentages(), true),
		Entry("bounds", Percentages{Tax: 0, Tip: MaxPercent}, true),
		Entry("negative tax", Percentages{Tax: -0.01, Tip: 0.1}, false),
		Entry("tip above the cap", Percentages{Tax: 0.1, Tip: 0.51}, false),
		Entry("NaN", Percentages{Tax: math.NaN(), Tip: 0.1}, false),
	)
})
