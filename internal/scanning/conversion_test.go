package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	return img
}

func encodePNG() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, testImage())).To(Succeed())
	return buf.Bytes()
}

func encodeJPEG() []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("PrepareImage", func() {
	var (
		input       []byte
		contentType string
		output      []byte
		mimeType    string
		err         error
	)

	JustBeforeEach(func() {
		output, mimeType, err = PrepareImage(input, contentType)
	})

	When("the upload is already PNG", func() {
		BeforeEach(func() {
			input = []byte("not really a png")
			contentType = "image/png"
		})

		It("passes it through", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(output).To(Equal(input))
			Expect(mimeType).To(Equal("image/png"))
		})
	})

	When("the upload is JPEG", func() {
		BeforeEach(func() {
			input = encodeJPEG()
			contentType = "image/jpeg"
		})

		It("converts it to PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(mimeType).To(Equal("image/png"))
			_, format, decodeErr := image.Decode(bytes.NewReader(output))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})

	When("the content type is missing", func() {
		BeforeEach(func() {
			input = encodePNG()
			contentType = "application/octet-stream"
		})

		It("sniffs the bytes", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(output).To(Equal(input))
		})
	})

	When("the bytes are not an image", func() {
		BeforeEach(func() {
			input = []byte("hello")
			contentType = "image/jpeg"
		})

		It("returns ErrUnreadableImage", func() {
			Expect(err).To(MatchError(ErrUnreadableImage))
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	It("recognizes the ftyp brand", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic\x00\x00"))).To(BeTrue())
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypisom\x00\x00"))).To(BeFalse())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
	})
})
