package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/offerwire/promofeed/internal/models"
	"github.com/sethvargo/go-retry"
)

// Retrying decorates a Store with bounded exponential backoff for transient
// connectivity failures: 3 attempts total, base delay doubling. Any other
// error class re-raises immediately.
type Retrying struct {
	inner      Store
	maxRetries uint64
	baseDelay  time.Duration
}

var _ Store = (*Retrying)(nil)

// WithRetry wraps a store with the default policy.
func WithRetry(inner Store) *Retrying {
	return &Retrying{inner: inner, maxRetries: 2, baseDelay: 250 * time.Millisecond}
}

func (r *Retrying) do(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.baseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (r *Retrying) CreateSourcePost(ctx context.Context, post *models.SourcePost) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.CreateSourcePost(ctx, post)
	})
}

func (r *Retrying) GetSourcePost(ctx context.Context, id uuid.UUID) (*models.SourcePost, error) {
	var post *models.SourcePost
	err := r.do(ctx, func(ctx context.Context) (err error) {
		post, err = r.inner.GetSourcePost(ctx, id)
		return err
	})
	return post, err
}

func (r *Retrying) GetSourcePostByURL(ctx context.Context, url string) (*models.SourcePost, error) {
	var post *models.SourcePost
	err := r.do(ctx, func(ctx context.Context) (err error) {
		post, err = r.inner.GetSourcePostByURL(ctx, url)
		return err
	})
	return post, err
}

func (r *Retrying) MarkSourceProcessed(ctx context.Context, id uuid.UUID, relevant bool) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.MarkSourceProcessed(ctx, id, relevant)
	})
}

func (r *Retrying) ListUnprocessedSourcePosts(ctx context.Context, limit int) ([]*models.SourcePost, error) {
	var posts []*models.SourcePost
	err := r.do(ctx, func(ctx context.Context) (err error) {
		posts, err = r.inner.ListUnprocessedSourcePosts(ctx, limit)
		return err
	})
	return posts, err
}

func (r *Retrying) UpsertPendingForSource(ctx context.Context, rec *models.PendingRecord) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.UpsertPendingForSource(ctx, rec)
	})
}

func (r *Retrying) GetPending(ctx context.Context, id uuid.UUID) (*models.PendingRecord, error) {
	var rec *models.PendingRecord
	err := r.do(ctx, func(ctx context.Context) (err error) {
		rec, err = r.inner.GetPending(ctx, id)
		return err
	})
	return rec, err
}

func (r *Retrying) GetPendingBySource(ctx context.Context, sourcePostID uuid.UUID) (*models.PendingRecord, error) {
	var rec *models.PendingRecord
	err := r.do(ctx, func(ctx context.Context) (err error) {
		rec, err = r.inner.GetPendingBySource(ctx, sourcePostID)
		return err
	})
	return rec, err
}

func (r *Retrying) UpdatePending(ctx context.Context, rec *models.PendingRecord) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.UpdatePending(ctx, rec)
	})
}

func (r *Retrying) ListPending(ctx context.Context, f PendingFilter) ([]*models.PendingRecord, error) {
	var recs []*models.PendingRecord
	err := r.do(ctx, func(ctx context.Context) (err error) {
		recs, err = r.inner.ListPending(ctx, f)
		return err
	})
	return recs, err
}

func (r *Retrying) ListBanks(ctx context.Context) ([]models.Bank, error) {
	var banks []models.Bank
	err := r.do(ctx, func(ctx context.Context) (err error) {
		banks, err = r.inner.ListBanks(ctx)
		return err
	})
	return banks, err
}

func (r *Retrying) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.do(ctx, func(ctx context.Context) (err error) {
		exists, err = r.inner.SlugExists(ctx, slug)
		return err
	})
	return exists, err
}

func (r *Retrying) GetPublished(ctx context.Context, id uuid.UUID) (*models.PublishedRecord, error) {
	var pub *models.PublishedRecord
	err := r.do(ctx, func(ctx context.Context) (err error) {
		pub, err = r.inner.GetPublished(ctx, id)
		return err
	})
	return pub, err
}

func (r *Retrying) ApprovePending(ctx context.Context, rec *models.PendingRecord, pub *models.PublishedRecord) error {
	return r.do(ctx, func(ctx context.Context) error {
		return r.inner.ApprovePending(ctx, rec, pub)
	})
}

func (r *Retrying) Close() {
	r.inner.Close()
}
