package document

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/docextract/internal/extraction"
)

var _ = Describe("BoltDB", func() {
	var (
		ctx context.Context
		db  *BoltDB
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = NewBoltDB(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	newDocument := func(id string) *Document {
		return &Document{
			ID:          id,
			Filename:    id + "_invoice.pdf",
			ContentType: "application/pdf",
			Kind:        "pdf",
			Locator:     "/data/" + id + "_invoice.pdf",
			Status:      StatusProcessed,
			Format:      extraction.FormatText,
			Fields: []extraction.Field{
				{Name: "Total", Value: "12.50", Confidence: 0.8},
				{Name: "Vendor", Value: "Acme", Confidence: 0.7},
			},
			Confidence: 0.75,
			Version:    1,
			CreatedAt:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			UpdatedAt:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		}
	}

	Describe("SaveDocument", func() {
		var (
			doc *Document
			err error
		)

		BeforeEach(func() {
			doc = newDocument("test-id")
		})

		JustBeforeEach(func() {
			err = db.SaveDocument(ctx, doc)
		})

		When("saving succeeds", func() {
			It("should save the document to the database", func() {
				Expect(err).NotTo(HaveOccurred())
				saved, getErr := db.GetDocument(ctx, "test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved).To(Equal(doc))
			})
		})

		When("fields repeat a name", func() {
			BeforeEach(func() {
				doc.Fields = append(doc.Fields, extraction.Field{Name: "Total", Value: "13.00", Confidence: 0.6})
			})

			It("keeps the last value at the first position", func() {
				saved, getErr := db.GetDocument(ctx, "test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Fields).To(HaveLen(2))
				Expect(saved.Fields[0].Value).To(Equal("13.00"))
			})

			It("does not modify the caller's document", func() {
				Expect(doc.Fields).To(HaveLen(3))
			})
		})
	})

	Describe("GetDocument", func() {
		When("document does not exist", func() {
			It("should return ErrNotFound", func() {
				_, err := db.GetDocument(ctx, "missing")
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("ListDocuments", func() {
		When("no documents exist", func() {
			It("should return an empty list", func() {
				docs, err := db.ListDocuments(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(docs).To(BeEmpty())
			})
		})

		When("documents exist", func() {
			BeforeEach(func() {
				Expect(db.SaveDocument(ctx, newDocument("a"))).To(Succeed())
				Expect(db.SaveDocument(ctx, newDocument("b"))).To(Succeed())
			})

			It("should return all documents", func() {
				docs, err := db.ListDocuments(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(docs).To(HaveLen(2))
			})
		})
	})

	Describe("DeleteDocument", func() {
		BeforeEach(func() {
			Expect(db.SaveDocument(ctx, newDocument("test-id"))).To(Succeed())
		})

		It("should remove the document", func() {
			Expect(db.DeleteDocument(ctx, "test-id")).To(Succeed())
			_, err := db.GetDocument(ctx, "test-id")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		When("document does not exist", func() {
			It("should return ErrNotFound", func() {
				err := db.DeleteDocument(ctx, "missing")
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})

	Describe("UpsertFields", func() {
		var (
			at     time.Time
			fields []extraction.Field
			doc    *Document
			err    error
		)

		BeforeEach(func() {
			Expect(db.SaveDocument(ctx, newDocument("test-id"))).To(Succeed())
			at = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
			fields = []extraction.Field{
				{Name: "Vendor", Value: "Acme Corp", Confidence: 1.0},
				{Name: "PO Number", Value: "PO-9", Confidence: 1.0},
			}
		})

		JustBeforeEach(func() {
			doc, err = db.UpsertFields(ctx, "test-id", fields, at)
		})

		It("merges by name and persists the result", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Fields).To(HaveLen(3))
			Expect(doc.Fields[1]).To(Equal(extraction.Field{Name: "Vendor", Value: "Acme Corp", Confidence: 1.0}))
			Expect(doc.Fields[2].Name).To(Equal("PO Number"))
			Expect(doc.Version).To(Equal(2))
			Expect(doc.UpdatedAt).To(Equal(at))

			saved, getErr := db.GetDocument(ctx, "test-id")
			Expect(getErr).NotTo(HaveOccurred())
			Expect(saved).To(Equal(doc))
		})

		It("recomputes the document confidence", func() {
			Expect(doc.Confidence).To(Equal(extraction.DocumentConfidence(doc.Fields)))
		})

		When("document does not exist", func() {
			BeforeEach(func() {
				Expect(db.DeleteDocument(ctx, "test-id")).To(Succeed())
			})

			It("should return ErrNotFound", func() {
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})
	})
})
