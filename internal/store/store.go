// Package store owns persistence for the pipeline entities. Retry policy is
// a decorator over the Store interface (see WithRetry) so it stays testable
// apart from any real backend.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/offerwire/promofeed/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned on uniqueness violations and illegal
	// double-writes (duplicate source URL, double approval).
	ErrConflict = errors.New("record conflict")
)

// TransientError marks a narrow class of connectivity failures (connection
// refused, timeout) that are safe to retry. Everything else re-raises
// immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient storage error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// PendingFilter narrows ListPending. Zero values mean "no filter".
type PendingFilter struct {
	Status   models.Status
	Category models.Category
	Limit    int
	Offset   int
}

// Store is the repository boundary for all pipeline entities.
type Store interface {
	CreateSourcePost(ctx context.Context, post *models.SourcePost) error
	GetSourcePost(ctx context.Context, id uuid.UUID) (*models.SourcePost, error)
	GetSourcePostByURL(ctx context.Context, url string) (*models.SourcePost, error)
	MarkSourceProcessed(ctx context.Context, id uuid.UUID, relevant bool) error
	ListUnprocessedSourcePosts(ctx context.Context, limit int) ([]*models.SourcePost, error)

	// UpsertPendingForSource creates the pending record for a source post
	// or overwrites the existing one: at most one pending record ever
	// exists per source post.
	UpsertPendingForSource(ctx context.Context, rec *models.PendingRecord) error
	GetPending(ctx context.Context, id uuid.UUID) (*models.PendingRecord, error)
	GetPendingBySource(ctx context.Context, sourcePostID uuid.UUID) (*models.PendingRecord, error)
	UpdatePending(ctx context.Context, rec *models.PendingRecord) error
	ListPending(ctx context.Context, f PendingFilter) ([]*models.PendingRecord, error)

	ListBanks(ctx context.Context) ([]models.Bank, error)

	SlugExists(ctx context.Context, slug string) (bool, error)
	GetPublished(ctx context.Context, id uuid.UUID) (*models.PublishedRecord, error)

	// ApprovePending atomically creates the published record and marks the
	// pending record approved. Both writes land or neither does.
	ApprovePending(ctx context.Context, rec *models.PendingRecord, pub *models.PublishedRecord) error

	Close()
}
