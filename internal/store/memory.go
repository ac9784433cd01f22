package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/offerwire/promofeed/internal/models"
)

// Memory is an in-memory Store for tests. It mirrors the Postgres
// implementation's semantics, including the all-or-nothing approve step, and
// supports per-operation fault injection via FailOnce.
type Memory struct {
	mu sync.Mutex

	sourcePosts map[uuid.UUID]*models.SourcePost
	byURL       map[string]uuid.UUID

	pending         map[uuid.UUID]*models.PendingRecord
	pendingBySource map[uuid.UUID]uuid.UUID

	published map[uuid.UUID]*models.PublishedRecord
	slugs     map[string]uuid.UUID

	banks []models.Bank

	// injected holds queued errors per operation name; Calls counts
	// invocations per operation.
	injected map[string][]error
	Calls    map[string]int
}

var _ Store = (*Memory)(nil)

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sourcePosts:     make(map[uuid.UUID]*models.SourcePost),
		byURL:           make(map[string]uuid.UUID),
		pending:         make(map[uuid.UUID]*models.PendingRecord),
		pendingBySource: make(map[uuid.UUID]uuid.UUID),
		published:       make(map[uuid.UUID]*models.PublishedRecord),
		slugs:           make(map[string]uuid.UUID),
		injected:        make(map[string][]error),
		Calls:           make(map[string]int),
	}
}

// FailOnce queues err to be returned by the next call to the named
// operation. Multiple queued errors are consumed in order.
func (m *Memory) FailOnce(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injected[op] = append(m.injected[op], err)
}

// SeedBanks loads the bank registry snapshot.
func (m *Memory) SeedBanks(banks []models.Bank) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.banks = banks
}

// fault must be called with the lock held.
func (m *Memory) fault(op string) error {
	m.Calls[op]++
	queue := m.injected[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	m.injected[op] = queue[1:]
	return err
}

func copySourcePost(p *models.SourcePost) *models.SourcePost {
	cp := *p
	if p.Relevant != nil {
		v := *p.Relevant
		cp.Relevant = &v
	}
	return &cp
}

func copyPending(r *models.PendingRecord) *models.PendingRecord {
	cp := *r
	cp.Fields = append([]byte(nil), r.Fields...)
	if r.FieldConfidence != nil {
		cp.FieldConfidence = make(map[string]int, len(r.FieldConfidence))
		for k, v := range r.FieldConfidence {
			cp.FieldConfidence[k] = v
		}
	}
	if r.BankID != nil {
		v := *r.BankID
		cp.BankID = &v
	}
	if r.PublishedRecordID != nil {
		v := *r.PublishedRecordID
		cp.PublishedRecordID = &v
	}
	return &cp
}

func copyPublished(p *models.PublishedRecord) *models.PublishedRecord {
	cp := *p
	if p.BankID != nil {
		v := *p.BankID
		cp.BankID = &v
	}
	if p.ExpiresAt != nil {
		v := *p.ExpiresAt
		cp.ExpiresAt = &v
	}
	return &cp
}

func (m *Memory) CreateSourcePost(ctx context.Context, post *models.SourcePost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("CreateSourcePost"); err != nil {
		return err
	}
	if _, exists := m.byURL[post.SourceURL]; exists {
		return fmt.Errorf("%w: source url %s", ErrConflict, post.SourceURL)
	}
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	post.CreatedAt = time.Now()
	m.sourcePosts[post.ID] = copySourcePost(post)
	m.byURL[post.SourceURL] = post.ID
	return nil
}

func (m *Memory) GetSourcePost(ctx context.Context, id uuid.UUID) (*models.SourcePost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("GetSourcePost"); err != nil {
		return nil, err
	}
	post, ok := m.sourcePosts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySourcePost(post), nil
}

func (m *Memory) GetSourcePostByURL(ctx context.Context, url string) (*models.SourcePost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("GetSourcePostByURL"); err != nil {
		return nil, err
	}
	id, ok := m.byURL[url]
	if !ok {
		return nil, ErrNotFound
	}
	return copySourcePost(m.sourcePosts[id]), nil
}

func (m *Memory) MarkSourceProcessed(ctx context.Context, id uuid.UUID, relevant bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("MarkSourceProcessed"); err != nil {
		return err
	}
	post, ok := m.sourcePosts[id]
	if !ok {
		return ErrNotFound
	}
	post.Processed = true
	v := relevant
	post.Relevant = &v
	return nil
}

func (m *Memory) ListUnprocessedSourcePosts(ctx context.Context, limit int) ([]*models.SourcePost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListUnprocessedSourcePosts"); err != nil {
		return nil, err
	}
	var posts []*models.SourcePost
	for _, p := range m.sourcePosts {
		if !p.Processed {
			posts = append(posts, copySourcePost(p))
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].PostedAt.Before(posts[j].PostedAt) })
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (m *Memory) UpsertPendingForSource(ctx context.Context, rec *models.PendingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("UpsertPendingForSource"); err != nil {
		return err
	}
	now := time.Now()
	if existingID, ok := m.pendingBySource[rec.SourcePostID]; ok {
		existing := m.pending[existingID]
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		rec.PublishedRecordID = existing.PublishedRecordID
	} else {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.pending[rec.ID] = copyPending(rec)
	m.pendingBySource[rec.SourcePostID] = rec.ID
	return nil
}

func (m *Memory) GetPending(ctx context.Context, id uuid.UUID) (*models.PendingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("GetPending"); err != nil {
		return nil, err
	}
	rec, ok := m.pending[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPending(rec), nil
}

func (m *Memory) GetPendingBySource(ctx context.Context, sourcePostID uuid.UUID) (*models.PendingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("GetPendingBySource"); err != nil {
		return nil, err
	}
	id, ok := m.pendingBySource[sourcePostID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPending(m.pending[id]), nil
}

func (m *Memory) UpdatePending(ctx context.Context, rec *models.PendingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("UpdatePending"); err != nil {
		return err
	}
	existing, ok := m.pending[rec.ID]
	if !ok {
		return ErrNotFound
	}
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now()
	m.pending[rec.ID] = copyPending(rec)
	return nil
}

func (m *Memory) ListPending(ctx context.Context, f PendingFilter) ([]*models.PendingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListPending"); err != nil {
		return nil, err
	}
	var recs []*models.PendingRecord
	for _, r := range m.pending {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Category != "" && r.Category != f.Category {
			continue
		}
		recs = append(recs, copyPending(r))
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].UpdatedAt.After(recs[j].UpdatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(recs) {
			return nil, nil
		}
		recs = recs[f.Offset:]
	}
	if f.Limit > 0 && len(recs) > f.Limit {
		recs = recs[:f.Limit]
	}
	return recs, nil
}

func (m *Memory) ListBanks(ctx context.Context) ([]models.Bank, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ListBanks"); err != nil {
		return nil, err
	}
	return append([]models.Bank(nil), m.banks...), nil
}

func (m *Memory) SlugExists(ctx context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("SlugExists"); err != nil {
		return false, err
	}
	_, ok := m.slugs[slug]
	return ok, nil
}

func (m *Memory) GetPublished(ctx context.Context, id uuid.UUID) (*models.PublishedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("GetPublished"); err != nil {
		return nil, err
	}
	pub, ok := m.published[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPublished(pub), nil
}

// PublishedCount reports how many published records exist; used by atomicity
// tests.
func (m *Memory) PublishedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

func (m *Memory) ApprovePending(ctx context.Context, rec *models.PendingRecord, pub *models.PublishedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("ApprovePending"); err != nil {
		return err
	}

	existing, ok := m.pending[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Status == models.StatusApproved {
		return fmt.Errorf("%w: pending record already approved", ErrConflict)
	}
	if _, taken := m.slugs[pub.Slug]; taken {
		return fmt.Errorf("%w: slug %s", ErrConflict, pub.Slug)
	}

	// Stage the published insert, then the pending update; an injected
	// failure between the two must leave no trace of either write.
	if pub.ID == uuid.Nil {
		pub.ID = uuid.New()
	}
	now := time.Now()
	pub.CreatedAt = now
	pub.UpdatedAt = now

	if err := m.fault("ApprovePending.update"); err != nil {
		return err
	}

	m.published[pub.ID] = copyPublished(pub)
	m.slugs[pub.Slug] = pub.ID
	existing.Status = models.StatusApproved
	existing.PublishedRecordID = &pub.ID
	existing.UpdatedAt = now

	rec.Status = models.StatusApproved
	rec.PublishedRecordID = &pub.ID
	rec.UpdatedAt = now
	return nil
}

func (m *Memory) Close() {}
