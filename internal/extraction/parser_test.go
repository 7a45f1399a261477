package extraction

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/docextract/internal/fetch"
)

type mockFetcher struct {
	local *fetch.Local
	err   error
}

func (m *mockFetcher) Fetch(_ context.Context, _ string) (*fetch.Local, error) {
	return m.local, m.err
}

type mockStrategy struct {
	format    Format
	supported bool
	fields    []Field
	err       error
	called    bool
}

func (m *mockStrategy) Format() Format { return m.format }
func (m *mockStrategy) Supports(_, _ string) bool { return m.supported }

func (m *mockStrategy) Extract(_ context.Context, _ File) ([]Field, error) {
	m.called = true
	return m.fields, m.err
}

var _ = Describe("Parser", func() {
	var (
		dir     string
		fetcher Fetcher
		locator string
		kind    string
		parser  *Parser
		result  *Result
		err     error
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		fetcher = fetch.NewRouter()
		kind = ""
		parser = nil
	})

	JustBeforeEach(func() {
		if parser == nil {
			parser = NewParser(fetcher, DefaultStrategies(nil, nil), nil)
		}
		result, err = parser.ParseDocument(context.Background(), locator, kind)
	})

	When("parsing a CSV", func() {
		BeforeEach(func() {
			locator = filepath.Join(dir, "totals.csv")
			kind = "csv"
			Expect(os.WriteFile(locator, []byte("Total\n10.00\n20.00\n30.00\n"), 0o644)).To(Succeed())
		})

		It("returns processed fields and a document confidence", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Format).To(Equal(FormatTabular))

			f, ok := fieldNamed(result.Fields, "Total")
			Expect(ok).To(BeTrue())
			Expect(f.Value).To(Equal("60.00"))
			Expect(f.ExtractionConfidence).To(Equal(0.85))
			Expect(f.Confidence).To(BeNumerically("~", 0.7*0.85+0.3*0.95, 1e-9))

			Expect(result.Confidence).To(BeNumerically(">", 0))
			Expect(result.Confidence).To(BeNumerically("<=", 1))
		})

		It("leaves the local file in place", func() {
			Expect(locator).To(BeAnExistingFile())
		})
	})

	When("a CSV has an unrelated extension", func() {
		BeforeEach(func() {
			locator = filepath.Join(dir, "export.bin")
			kind = "text/csv"
			Expect(os.WriteFile(locator, []byte("Total\n10.00\n20.00\n30.00\n"), 0o644)).To(Succeed())
		})

		It("parses it from the declared kind", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Format).To(Equal(FormatTabular))
			f, ok := fieldNamed(result.Fields, "Grand Total")
			Expect(ok).To(BeTrue())
			Expect(f.Value).To(Equal("60.00"))
		})
	})

	When("parsing an empty text file", func() {
		BeforeEach(func() {
			locator = filepath.Join(dir, "empty.txt")
			Expect(os.WriteFile(locator, nil, 0o644)).To(Succeed())
		})

		It("returns an empty result with zero confidence", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Fields).To(BeEmpty())
			Expect(result.Confidence).To(BeZero())
		})
	})

	When("no strategy supports the file", func() {
		BeforeEach(func() {
			locator = filepath.Join(dir, "archive.bin")
			kind = "binary"
			Expect(os.WriteFile(locator, []byte{0x00}, 0o644)).To(Succeed())
		})

		It("returns an unsupported format error naming kind and extension", func() {
			Expect(errors.Is(err, ErrUnsupportedFormat)).To(BeTrue())
			var unsupported *UnsupportedFormatError
			Expect(errors.As(err, &unsupported)).To(BeTrue())
			Expect(unsupported.Kind).To(Equal("binary"))
			Expect(unsupported.Extension).To(Equal(".bin"))
		})
	})

	When("the fetch fails", func() {
		BeforeEach(func() {
			locator = filepath.Join(dir, "missing.pdf")
		})

		It("returns the fetch error unchanged", func() {
			var fetchErr *fetch.Error
			Expect(errors.As(err, &fetchErr)).To(BeTrue())
			var extractionErr *ExtractionError
			Expect(errors.As(err, &extractionErr)).To(BeFalse())
		})
	})

	When("the strategy fails", func() {
		var strategy *mockStrategy

		BeforeEach(func() {
			locator = filepath.Join(dir, "doc.txt")
			Expect(os.WriteFile(locator, []byte("x"), 0o644)).To(Succeed())
			strategy = &mockStrategy{format: FormatText, supported: true, err: errors.New("malformed table")}
			parser = NewParser(fetcher, []Strategy{strategy}, nil)
		})

		It("wraps the cause", func() {
			var extractionErr *ExtractionError
			Expect(strategy.called).To(BeTrue())
			Expect(errors.As(err, &extractionErr)).To(BeTrue())
			Expect(err.Error()).To(Equal("failed to parse document: malformed table"))
		})
	})

	When("the source is downloaded", func() {
		var (
			server *ghttp.Server
			tmp    string
		)

		BeforeEach(func() {
			tmp = GinkgoT().TempDir()
			GinkgoT().Setenv("TMPDIR", tmp)

			server = ghttp.NewServer()
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "Amount\n5\n"))
			fetcher = fetch.NewRouter().Register("http", fetch.NewHTTP(nil))
			locator = server.URL() + "/export.csv"
		})

		AfterEach(func() {
			server.Close()
		})

		It("parses the temporary copy and deletes it", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Fields).To(ContainElement(HaveField("Name", "Amount")))
			entries, readErr := os.ReadDir(tmp)
			Expect(readErr).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		When("extraction fails", func() {
			BeforeEach(func() {
				parser = NewParser(fetcher, []Strategy{&mockStrategy{supported: true, err: errors.New("boom")}}, nil)
			})

			It("still deletes the temporary copy", func() {
				Expect(err).To(HaveOccurred())
				entries, readErr := os.ReadDir(tmp)
				Expect(readErr).NotTo(HaveOccurred())
				Expect(entries).To(BeEmpty())
			})
		})
	})
})

var _ = Describe("Parser.SelectStrategy", func() {
	parser := NewParser(&mockFetcher{}, DefaultStrategies(nil, nil), nil)

	DescribeTable("first match in list order",
		func(kind, ext string, expected Format) {
			s, err := parser.SelectStrategy(kind, ext)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Format()).To(Equal(expected))
		},
		Entry("pdf", "pdf", ".pdf", FormatText),
		Entry("csv", "csv", ".csv", FormatTabular),
		Entry("xlsx by extension", "", ".xlsx", FormatTabular),
		Entry("image", "image/jpeg", ".jpg", FormatImage),
		Entry("csv declared as pdf goes to the text strategy", "pdf", ".csv", FormatText),
	)

	It("fails for unknown combinations", func() {
		_, err := parser.SelectStrategy("binary", ".bin")
		Expect(err).To(MatchError(ErrUnsupportedFormat))
	})
})
