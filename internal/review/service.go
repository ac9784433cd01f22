// Package review owns the human-in-the-loop lifecycle of a pending record:
// manual edits, rejection, and the transactional approve step that
// materializes a published record.
package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/offerwire/promofeed/internal/logger"
	"github.com/offerwire/promofeed/internal/models"
	"github.com/offerwire/promofeed/internal/store"
)

// ErrReasonRequired is returned when a rejection arrives without a reason.
var ErrReasonRequired = errors.New("rejection reason is required")

// Archiver snapshots approved content to object storage. Optional; approval
// never fails on it.
type Archiver interface {
	ArchivePublished(ctx context.Context, pub *models.PublishedRecord) error
}

// Service implements the review operations over the store.
type Service struct {
	store    store.Store
	archiver Archiver
}

// NewService wires the review service. archiver may be nil.
func NewService(st store.Store, archiver Archiver) *Service {
	return &Service{store: st, archiver: archiver}
}

// SaveRequest carries a manual edit. Nil/empty parts leave the record's
// current value untouched. Saving never changes status.
type SaveRequest struct {
	Category models.Category `json:"category"`
	Fields   json.RawMessage `json:"fields"`
	Note     string          `json:"note"`
}

// Save applies a manual edit to a pending record.
func (s *Service) Save(ctx context.Context, id uuid.UUID, req SaveRequest) (*models.PendingRecord, error) {
	rec, err := s.store.GetPending(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot edit %s record", store.ErrConflict, rec.Status)
	}

	if req.Category != "" {
		rec.Category = models.ParseCategory(string(req.Category))
	}
	if len(req.Fields) > 0 {
		rec.Fields = req.Fields
	}
	if req.Category != "" || len(req.Fields) > 0 {
		// Edits must still fit the category's typed shape. Re-encoding
		// through the typed variant drops keys left over from a previous
		// category.
		fs, err := models.DecodeFields(rec.Category, rec.Fields)
		if err != nil {
			return nil, err
		}
		if rec.Fields, err = models.EncodeFields(fs); err != nil {
			return nil, err
		}
	}
	rec.AppendNote(req.Note)

	if err := s.store.UpdatePending(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Reject marks a record rejected. Allowed from any non-terminal status; a
// reason is mandatory. Rejection is a terminal status, not an erasure.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*models.PendingRecord, error) {
	if reason == "" {
		return nil, ErrReasonRequired
	}

	rec, err := s.store.GetPending(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(rec.Status, models.StatusRejected) {
		return nil, fmt.Errorf("%w: cannot reject %s record", store.ErrConflict, rec.Status)
	}

	rec.Status = models.StatusRejected
	rec.AppendNote(fmt.Sprintf("[%s] Rejected: %s", time.Now().Format(time.RFC3339), reason))

	if err := s.store.UpdatePending(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Approve derives title, slug, and body from the record's fields and
// atomically creates the published record while marking the pending record
// approved. The published record is always created as draft.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*models.PublishedRecord, error) {
	rec, err := s.store.GetPending(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == models.StatusApproved {
		return nil, fmt.Errorf("%w: pending record already approved", store.ErrConflict)
	}
	if !models.CanTransition(rec.Status, models.StatusApproved) {
		return nil, fmt.Errorf("%w: cannot approve %s record", store.ErrConflict, rec.Status)
	}

	fs, err := rec.DecodeFields()
	if err != nil {
		return nil, fmt.Errorf("pending record has unusable fields: %w", err)
	}

	title := DeriveTitle(fs)
	if title == "" {
		return nil, fmt.Errorf("pending record has no content to derive a title from")
	}

	slug, err := ResolveSlug(ctx, s.store.SlugExists, title)
	if err != nil {
		return nil, err
	}

	pub := &models.PublishedRecord{
		Title:     title,
		Slug:      slug,
		Category:  rec.Category,
		BankID:    rec.BankID,
		ExpiresAt: parseExpiry(fs.Expiry()),
		Body:      buildBody(fs),
		Status:    models.PublishedStatusDraft,
	}

	if err := s.store.ApprovePending(ctx, rec, pub); err != nil {
		return nil, err
	}

	if s.archiver != nil {
		if err := s.archiver.ArchivePublished(ctx, pub); err != nil {
			logger.Get().Warn().Err(err).Str("slug", pub.Slug).Msg("archive snapshot failed")
		}
	}

	return pub, nil
}

// DeriveTitle prefers the explicit title field, then the category headline,
// then the first 60 characters of the detail body, ellipsized.
func DeriveTitle(fs models.FieldSet) string {
	if t := fs.Title(); t != "" {
		return t
	}
	if h := fs.Headline(); h != "" {
		return h
	}
	return models.Truncate(fs.Detail(), 60)
}

// buildBody assembles the published body from the detail content, falling
// back to the excerpt, then the derived title.
func buildBody(fs models.FieldSet) string {
	if d := fs.Detail(); d != "" {
		return d
	}
	if e := fs.Excerpt(); e != "" {
		return e
	}
	return DeriveTitle(fs)
}

func parseExpiry(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
