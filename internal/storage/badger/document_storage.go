package badger

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/interfaces"
	"github.com/ternarybob/censeo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// DocumentStorage implements the DocumentStorage interface for Badger
type DocumentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDocumentStorage creates a new DocumentStorage instance
func NewDocumentStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DocumentStorage {
	return &DocumentStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DocumentStorage) SaveDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		return &models.ValidationError{Msg: "document ID is required"}
	}

	if err := s.db.Store().Upsert(doc.ID, doc); err != nil {
		return &models.PersistenceError{Op: "save document", Err: err}
	}
	return nil
}

func (s *DocumentStorage) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.Store().Get(docID, &doc); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, &models.NotFoundError{Kind: "document", ID: docID}
		}
		return nil, &models.PersistenceError{Op: "get document", Err: err}
	}
	return &doc, nil
}

func (s *DocumentStorage) DeleteDocument(ctx context.Context, docID string) error {
	if err := s.db.Store().Delete(docID, &models.Document{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil // Already gone
		}
		return &models.PersistenceError{Op: "delete document", Err: err}
	}
	return nil
}

func (s *DocumentStorage) ListDocumentIDs(ctx context.Context) ([]string, error) {
	var docs []models.Document
	if err := s.db.Store().Find(&docs, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, &models.PersistenceError{Op: "list documents", Err: err}
	}

	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = docs[i].ID
	}
	return ids, nil
}
