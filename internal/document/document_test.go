package document

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/docextract/internal/extraction"
)

var _ = Describe("mergeFields", func() {
	It("lets the last write win at the first position", func() {
		merged := mergeFields(
			[]extraction.Field{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}},
			[]extraction.Field{{Name: "C", Value: "3"}, {Name: "A", Value: "4"}},
		)
		Expect(merged).To(Equal([]extraction.Field{
			{Name: "A", Value: "4"},
			{Name: "B", Value: "2"},
			{Name: "C", Value: "3"},
		}))
	})

	It("collapses duplicates within one list", func() {
		merged := mergeFields(nil, []extraction.Field{{Name: "Total", Value: "1"}, {Name: "Total", Value: "2"}})
		Expect(merged).To(Equal([]extraction.Field{{Name: "Total", Value: "2"}}))
	})

	It("returns an empty list for no input", func() {
		Expect(mergeFields(nil, nil)).To(BeEmpty())
	})

	It("does not modify its input", func() {
		existing := []extraction.Field{{Name: "A", Value: "1"}}
		mergeFields(existing, []extraction.Field{{Name: "A", Value: "2"}})
		Expect(existing[0].Value).To(Equal("1"))
	})
})
