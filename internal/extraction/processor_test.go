package extraction

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Processor", func() {
	var (
		format Format
		input  []Field
		output []Field
	)

	JustBeforeEach(func() {
		output = NewProcessor().Process(input, format)
	})

	When("processing text fields", func() {
		BeforeEach(func() {
			format = FormatText
			input = []Field{
				{Name: "Total", Value: " $1,234.5 ", Confidence: 0.8},
				{Name: "Notes", Value: "multi\n  line   value", Confidence: 0.7},
				{Name: "Invoice Date", Value: "not a date", Confidence: 0.85},
			}
		})

		It("normalizes by field name", func() {
			Expect(output[0].Value).To(Equal("1234.50"))
			Expect(output[1].Value).To(Equal("multi line value"))
			Expect(output[2].Value).To(Equal("not a date"))
		})

		It("keeps the raw value and extraction confidence", func() {
			Expect(output[0].RawValue).To(Equal(" $1,234.5 "))
			Expect(output[0].ExtractionConfidence).To(Equal(0.8))
		})

		It("rescores from the normalized value", func() {
			Expect(output[0].Confidence).To(BeNumerically("~", 0.7*0.8+0.3*0.95, 1e-9))
		})

		It("records validity for typed fields only", func() {
			Expect(output[0].IsValid).NotTo(BeNil())
			Expect(*output[0].IsValid).To(BeTrue())
			Expect(output[1].IsValid).To(BeNil())
			Expect(*output[2].IsValid).To(BeFalse())
		})

		It("does not modify its input", func() {
			Expect(input[0].Value).To(Equal(" $1,234.5 "))
		})
	})

	When("a text field holds serialized line items", func() {
		BeforeEach(func() {
			format = FormatText
			input = []Field{
				{Name: lineItemsFieldName, Value: `[{"headers":["Item"],"rows":[["Widget  A"]]}]`, Confidence: lineItemsConfidence},
			}
		})

		It("leaves the JSON untouched", func() {
			Expect(output[0].Value).To(Equal(`[{"headers":["Item"],"rows":[["Widget  A"]]}]`))
		})
	})

	When("processing image fields", func() {
		BeforeEach(func() {
			format = FormatImage
			input = []Field{
				{Name: "Total", Value: "S12.5O", Confidence: 0.6},
				{Name: "Customer Name", Value: "J0HN SM1TH", Confidence: 0.6},
				{Name: "Reference", Value: "B0X-1", Confidence: 0.6},
			}
		})

		It("corrects OCR confusions before normalizing", func() {
			Expect(output[0].Value).To(Equal("12.50"))
			Expect(output[1].Value).To(Equal("John Smith"))
		})

		It("leaves fields without a type alone", func() {
			Expect(output[2].Value).To(Equal("B0X-1"))
		})
	})

	When("processing tabular fields", func() {
		BeforeEach(func() {
			format = FormatTabular
			input = []Field{
				{Name: "Invoice", Value: `="INV-7"`, Confidence: 0.85},
				{Name: "Amount", Value: "=42", Confidence: 0.85},
				{Name: "Reference", Value: "\tREF-1\x07", Confidence: 0.7},
			}
		})

		It("strips formula artifacts and control characters", func() {
			Expect(output[0].Value).To(Equal("INV-7"))
			Expect(output[1].Value).To(Equal("42.00"))
			Expect(output[2].Value).To(Equal("REF-1"))
		})
	})

	When("any field is processed", func() {
		BeforeEach(func() {
			format = FormatText
			input = []Field{
				{Name: "Email", Value: "", Confidence: 2},
				{Name: "Phone", Value: "5551234567", Confidence: -1},
				{Name: "Vendor", Value: "acme corp", Confidence: 0.75},
			}
		})

		It("keeps every confidence in range", func() {
			for _, f := range output {
				Expect(f.Confidence).To(BeNumerically(">=", 0))
				Expect(f.Confidence).To(BeNumerically("<=", 1))
			}
		})

		It("applies the common pass", func() {
			Expect(output[1].Value).To(Equal("(555) 123-4567"))
			Expect(output[2].Value).To(Equal("Acme Corp"))
		})
	})
})
