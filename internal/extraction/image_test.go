package extraction

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/docextract/internal/ocr"
)

type mockBackend struct {
	recognition ocr.Recognition
	err         error

	contentType string
}

func (m *mockBackend) Recognize(_ context.Context, _ []byte, contentType string) (ocr.Recognition, error) {
	m.contentType = contentType
	return m.recognition, m.err
}

func writePNG(path string, w, h int) {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)))).To(Succeed())
	Expect(os.WriteFile(path, buf.Bytes(), 0o644)).To(Succeed())
}

var _ = Describe("ImageStrategy", func() {
	var (
		backend ocr.Backend
		path    string
		fields  []Field
		err     error
	)

	BeforeEach(func() {
		backend = nil
		path = filepath.Join(GinkgoT().TempDir(), "receipt.png")
		writePNG(path, 640, 480)
	})

	JustBeforeEach(func() {
		fields, err = NewImageStrategy(backend, nil).Extract(context.Background(), NewFile(path, "image/png"))
	})

	When("no OCR backend is configured", func() {
		It("returns image metadata only", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fields).To(Equal([]Field{
				{Name: "_metadata_image_width", Value: "640", Confidence: 1.0},
				{Name: "_metadata_image_height", Value: "480", Confidence: 1.0},
				{Name: "_metadata_image_format", Value: "png", Confidence: 1.0},
			}))
		})
	})

	When("the backend recognizes text", func() {
		var mock *mockBackend

		BeforeEach(func() {
			mock = &mockBackend{recognition: ocr.NewRecognition([]ocr.Line{
				{Text: "Invoice #: INV-7", Confidence: 0.8},
				{Text: "Total: $12.50", Confidence: 0.8},
			})}
			backend = mock
		})

		It("passes the image content type", func() {
			Expect(mock.contentType).To(Equal("image/png"))
		})

		It("scales detector confidence by recognition confidence", func() {
			Expect(err).NotTo(HaveOccurred())
			f, ok := fieldNamed(fields, "Invoice Number")
			Expect(ok).To(BeTrue())
			Expect(f.Value).To(Equal("INV-7"))
			Expect(f.Confidence).To(BeNumerically("~", 0.9*0.8, 1e-9))

			f, ok = fieldNamed(fields, "Total")
			Expect(ok).To(BeTrue())
			Expect(f.Value).To(Equal("$12.50"))
			Expect(f.Confidence).To(BeNumerically("~", 0.8*0.8, 1e-9))
		})

		It("still reports metadata", func() {
			Expect(fields).To(ContainElement(Field{Name: "_metadata_image_format", Value: "png", Confidence: 1.0}))
		})
	})

	When("the backend fails", func() {
		BeforeEach(func() {
			backend = &mockBackend{err: errors.New("tesseract not installed")}
		})

		It("returns the cause", func() {
			Expect(err).To(MatchError(ContainSubstring("tesseract not installed")))
		})
	})

	When("the file is not an image", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(path, []byte("definitely not a png"), 0o644)).To(Succeed())
		})

		It("returns an error", func() {
			Expect(err).To(MatchError(ContainSubstring("decoding image header")))
		})
	})
})

var _ = Describe("ImageStrategy.Supports", func() {
	strategy := NewImageStrategy(nil, nil)

	DescribeTable("declared kind or extension",
		func(kind, ext string, expected bool) {
			Expect(strategy.Supports(kind, ext)).To(Equal(expected))
		},
		Entry("mime prefix", "image/webp", "", true),
		Entry("heic extension", "", ".HEIC", true),
		Entry("jpeg kind", "jpeg", "", true),
		Entry("pdf", "pdf", ".pdf", false),
	)
})
