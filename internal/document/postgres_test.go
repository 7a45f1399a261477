package document

import (
	"context"
	"errors"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/docextract/internal/extraction"
)

var _ = Describe("PostgresDB", func() {
	var (
		ctx context.Context
		db  *PostgresDB
	)

	BeforeEach(func() {
		dsn := os.Getenv("DOCEXTRACT_TEST_POSTGRES_URL")
		if dsn == "" {
			Skip("DOCEXTRACT_TEST_POSTGRES_URL not set")
		}
		ctx = context.Background()

		var err error
		db, err = NewPostgresDB(ctx, PostgresConfig{DSN: dsn, MaxConns: 2, DialTimeout: 5 * time.Second}, nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = db.pool.Exec(ctx, `TRUNCATE documents CASCADE`)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	valid := true
	newDocument := func() *Document {
		return &Document{
			ID:          "pg-1",
			Filename:    "pg-1_invoice.pdf",
			ContentType: "application/pdf",
			Kind:        "pdf",
			Locator:     "/data/pg-1_invoice.pdf",
			Status:      StatusProcessed,
			Format:      extraction.FormatText,
			Fields: []extraction.Field{
				{Name: "Total", Value: "12.50", Confidence: 0.8, IsValid: &valid, RawValue: "$12.50", ExtractionConfidence: 0.8},
				{Name: "Vendor", Value: "Acme", Confidence: 0.7},
				{Name: "Total", Value: "13.00", Confidence: 0.6, IsValid: &valid},
			},
			Confidence: 0.75,
			Version:    1,
			CreatedAt:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			UpdatedAt:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		}
	}

	It("round trips a document with deduplicated fields", func() {
		Expect(db.SaveDocument(ctx, newDocument())).To(Succeed())

		saved, err := db.GetDocument(ctx, "pg-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.Status).To(Equal(StatusProcessed))
		Expect(saved.Format).To(Equal(extraction.FormatText))
		Expect(saved.Fields).To(HaveLen(2))
		Expect(saved.Fields[0].Name).To(Equal("Total"))
		Expect(saved.Fields[0].Value).To(Equal("13.00"))
		Expect(saved.Fields[1].IsValid).To(BeNil())
	})

	It("upserts fields by name", func() {
		Expect(db.SaveDocument(ctx, newDocument())).To(Succeed())

		doc, err := db.UpsertFields(ctx, "pg-1", []extraction.Field{
			{Name: "Vendor", Value: "Acme Corp", Confidence: 1.0},
			{Name: "PO Number", Value: "PO-9", Confidence: 1.0},
		}, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Version).To(Equal(2))

		saved, err := db.GetDocument(ctx, "pg-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.Fields).To(HaveLen(3))
		Expect(saved.Fields[1].Value).To(Equal("Acme Corp"))
		Expect(saved.Fields[2].Name).To(Equal("PO Number"))
		Expect(saved.Version).To(Equal(2))
	})

	It("reports missing documents", func() {
		_, err := db.GetDocument(ctx, "missing")
		Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		Expect(errors.Is(db.DeleteDocument(ctx, "missing"), ErrNotFound)).To(BeTrue())
		_, err = db.UpsertFields(ctx, "missing", nil, time.Now())
		Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
	})

	It("lists and deletes", func() {
		Expect(db.SaveDocument(ctx, newDocument())).To(Succeed())
		docs, err := db.ListDocuments(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
		Expect(docs[0].Fields).To(HaveLen(2))

		Expect(db.DeleteDocument(ctx, "pg-1")).To(Succeed())
		docs, err = db.ListDocuments(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(BeEmpty())
	})
})
