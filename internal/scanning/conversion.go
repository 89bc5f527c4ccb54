package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// decodeUpload turns an upload into a single image. Only the first page of
// a PDF is used.
func decodeUpload(data []byte, mimeType string) (image.Image, error) {
	switch {
	case mimeType == "application/pdf":
		doc, err := fitz.NewFromMemory(data)
		if err != nil {
			return nil, fmt.Errorf("opening PDF: %w", err)
		}
		defer doc.Close()
		if doc.NumPage() == 0 {
			return nil, fmt.Errorf("PDF has no pages")
		}
		return doc.Image(0)
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		// The standard image package cannot read the iPhone default format
		return heic.Decode(bytes.NewReader(data))
	default:
		img, _, err := image.Decode(bytes.NewReader(data))
		return img, err
	}
}

func pngBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks for an ftyp box with a HEIC-family brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// detectMimeType trusts the declared type unless it is missing or generic,
// in which case the bytes are sniffed.
func detectMimeType(imageData []byte, contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType != "" && mimeType != "application/octet-stream" {
		return mimeType
	}
	if isHEICFormat(imageData) {
		return "image/heic"
	}
	sniffed := http.DetectContentType(imageData)
	if i := strings.Index(sniffed, ";"); i >= 0 {
		sniffed = sniffed[:i]
	}
	return sniffed
}

// PrepareImage converts an upload to PNG, the one format every provider
// accepts. PNG input is passed through untouched.
func PrepareImage(imageData []byte, contentType string) ([]byte, string, error) {
	mimeType := detectMimeType(imageData, contentType)
	if mimeType == "image/png" && !isHEICFormat(imageData) {
		return imageData, mimeType, nil
	}

	img, err := decodeUpload(imageData, mimeType)
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading %s (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF): %w", ErrUnreadableImage, mimeType, err)
	}
	out, err := pngBytes(img)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrUnreadableImage, err)
	}
	return out, "image/png", nil
}
