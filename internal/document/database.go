package document

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/docextract/internal/extraction"
)

const bucketName = "documents"

// DB defines the interface for document persistence
type DB interface {
	// SaveDocument inserts or replaces a document. Fields sharing a name are
	// collapsed, last one wins.
	SaveDocument(ctx context.Context, doc *Document) error

	// GetDocument retrieves a document by ID. Missing documents return
	// ErrNotFound.
	GetDocument(ctx context.Context, id string) (*Document, error)

	// ListDocuments returns all documents
	ListDocuments(ctx context.Context) ([]*Document, error)

	// DeleteDocument removes a document
	DeleteDocument(ctx context.Context, id string) error

	// UpsertFields merges fields into a stored document by name and returns
	// the updated document.
	UpsertFields(ctx context.Context, id string, fields []extraction.Field, at time.Time) (*Document, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) SaveDocument(_ context.Context, doc *Document) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		stored := *doc
		stored.Fields = mergeFields(nil, doc.Fields)
		return put(tx.Bucket([]byte(bucketName)), &stored)
	})
}

func (b *BoltDB) GetDocument(_ context.Context, id string) (*Document, error) {
	var doc *Document
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		doc, err = get(tx.Bucket([]byte(bucketName)), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (b *BoltDB) ListDocuments(_ context.Context) ([]*Document, error) {
	docs := make([]*Document, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("unmarshaling document: %w", err)
			}
			docs = append(docs, &doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (b *BoltDB) DeleteDocument(_ context.Context, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bucket.Delete([]byte(id))
	})
}

func (b *BoltDB) UpsertFields(_ context.Context, id string, fields []extraction.Field, at time.Time) (*Document, error) {
	var doc *Document
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		var err error
		doc, err = get(bucket, id)
		if err != nil {
			return err
		}
		applyFieldUpdates(doc, fields, at)
		return put(bucket, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func get(bucket *bbolt.Bucket, id string) (*Document, error) {
	data := bucket.Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling document: %w", err)
	}
	return &doc, nil
}

func put(bucket *bbolt.Bucket, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	return bucket.Put([]byte(doc.ID), data)
}
