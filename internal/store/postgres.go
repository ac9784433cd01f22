package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/offerwire/promofeed/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres connects and verifies the pool.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, mapError(fmt.Errorf("ping database: %w", err))
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema applies the embedded schema. Statements are idempotent.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return mapError(fmt.Errorf("apply schema: %w", err))
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// mapError translates driver errors into the store's typed hierarchy.
// Unique violations become ErrConflict; connection refused/timeout becomes
// TransientError; anything else passes through untouched.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransientError{Err: err}
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return &TransientError{Err: err}
	}
	return err
}

func (p *Postgres) CreateSourcePost(ctx context.Context, post *models.SourcePost) error {
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	query := `
		INSERT INTO source_posts (id, source_url, source_id, text, author_handle, author_name, posted_at, processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		RETURNING created_at
	`
	err := p.pool.QueryRow(ctx, query,
		post.ID,
		post.SourceURL,
		post.SourceID,
		post.Text,
		post.AuthorHandle,
		post.AuthorName,
		post.PostedAt,
	).Scan(&post.CreatedAt)
	if err != nil {
		return mapError(fmt.Errorf("create source post: %w", err))
	}
	return nil
}

const sourcePostColumns = `id, source_url, source_id, text, author_handle, author_name, posted_at, processed, relevant, created_at`

func scanSourcePost(row pgx.Row) (*models.SourcePost, error) {
	var post models.SourcePost
	err := row.Scan(
		&post.ID,
		&post.SourceURL,
		&post.SourceID,
		&post.Text,
		&post.AuthorHandle,
		&post.AuthorName,
		&post.PostedAt,
		&post.Processed,
		&post.Relevant,
		&post.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mapError(fmt.Errorf("scan source post: %w", err))
	}
	return &post, nil
}

func (p *Postgres) GetSourcePost(ctx context.Context, id uuid.UUID) (*models.SourcePost, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+sourcePostColumns+` FROM source_posts WHERE id = $1`, id)
	return scanSourcePost(row)
}

func (p *Postgres) GetSourcePostByURL(ctx context.Context, url string) (*models.SourcePost, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+sourcePostColumns+` FROM source_posts WHERE source_url = $1`, url)
	return scanSourcePost(row)
}

func (p *Postgres) MarkSourceProcessed(ctx context.Context, id uuid.UUID, relevant bool) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE source_posts SET processed = TRUE, relevant = $2 WHERE id = $1`, id, relevant)
	if err != nil {
		return mapError(fmt.Errorf("mark source processed: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListUnprocessedSourcePosts(ctx context.Context, limit int) ([]*models.SourcePost, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+sourcePostColumns+` FROM source_posts WHERE processed = FALSE ORDER BY posted_at ASC LIMIT $1`,
		limit)
	if err != nil {
		return nil, mapError(fmt.Errorf("list unprocessed: %w", err))
	}
	defer rows.Close()

	var posts []*models.SourcePost
	for rows.Next() {
		post, err := scanSourcePost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("iterate unprocessed: %w", err))
	}
	return posts, nil
}

func (p *Postgres) UpsertPendingForSource(ctx context.Context, rec *models.PendingRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	confJSON, err := json.Marshal(rec.FieldConfidence)
	if err != nil {
		return fmt.Errorf("marshal field confidence: %w", err)
	}
	query := `
		INSERT INTO pending_records
			(id, source_post_id, category, fields, field_confidence, overall_confidence, status, reviewer_notes, bank_id, bank_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source_post_id) DO UPDATE SET
			category = EXCLUDED.category,
			fields = EXCLUDED.fields,
			field_confidence = EXCLUDED.field_confidence,
			overall_confidence = EXCLUDED.overall_confidence,
			status = EXCLUDED.status,
			reviewer_notes = EXCLUDED.reviewer_notes,
			bank_id = EXCLUDED.bank_id,
			bank_name = EXCLUDED.bank_name,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err = p.pool.QueryRow(ctx, query,
		rec.ID,
		rec.SourcePostID,
		rec.Category,
		[]byte(rec.Fields),
		confJSON,
		rec.OverallConfidence,
		rec.Status,
		rec.ReviewerNotes,
		rec.BankID,
		rec.BankName,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return mapError(fmt.Errorf("upsert pending: %w", err))
	}
	return nil
}

const pendingColumns = `id, source_post_id, category, fields, field_confidence, overall_confidence, status, reviewer_notes, bank_id, bank_name, published_record_id, created_at, updated_at`

func scanPending(row pgx.Row) (*models.PendingRecord, error) {
	var rec models.PendingRecord
	var fields, conf []byte
	err := row.Scan(
		&rec.ID,
		&rec.SourcePostID,
		&rec.Category,
		&fields,
		&conf,
		&rec.OverallConfidence,
		&rec.Status,
		&rec.ReviewerNotes,
		&rec.BankID,
		&rec.BankName,
		&rec.PublishedRecordID,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mapError(fmt.Errorf("scan pending: %w", err))
	}
	rec.Fields = json.RawMessage(fields)
	if len(conf) > 0 {
		if err := json.Unmarshal(conf, &rec.FieldConfidence); err != nil {
			return nil, fmt.Errorf("unmarshal field confidence: %w", err)
		}
	}
	return &rec, nil
}

func (p *Postgres) GetPending(ctx context.Context, id uuid.UUID) (*models.PendingRecord, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+pendingColumns+` FROM pending_records WHERE id = $1`, id)
	return scanPending(row)
}

func (p *Postgres) GetPendingBySource(ctx context.Context, sourcePostID uuid.UUID) (*models.PendingRecord, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+pendingColumns+` FROM pending_records WHERE source_post_id = $1`, sourcePostID)
	return scanPending(row)
}

func (p *Postgres) UpdatePending(ctx context.Context, rec *models.PendingRecord) error {
	confJSON, err := json.Marshal(rec.FieldConfidence)
	if err != nil {
		return fmt.Errorf("marshal field confidence: %w", err)
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE pending_records SET
			category = $2,
			fields = $3,
			field_confidence = $4,
			overall_confidence = $5,
			status = $6,
			reviewer_notes = $7,
			bank_id = $8,
			bank_name = $9,
			updated_at = NOW()
		WHERE id = $1`,
		rec.ID,
		rec.Category,
		[]byte(rec.Fields),
		confJSON,
		rec.OverallConfidence,
		rec.Status,
		rec.ReviewerNotes,
		rec.BankID,
		rec.BankName,
	)
	if err != nil {
		return mapError(fmt.Errorf("update pending: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPending builds the filtered queue query dynamically.
func (p *Postgres) ListPending(ctx context.Context, f PendingFilter) ([]*models.PendingRecord, error) {
	builder := sq.Select(pendingColumns).
		From("pending_records").
		OrderBy("updated_at DESC").
		PlaceholderFormat(sq.Dollar)

	if f.Status != "" {
		builder = builder.Where(sq.Eq{"status": f.Status})
	}
	if f.Category != "" {
		builder = builder.Where(sq.Eq{"category": f.Category})
	}
	if f.Limit > 0 {
		builder = builder.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		builder = builder.Offset(uint64(f.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(fmt.Errorf("list pending: %w", err))
	}
	defer rows.Close()

	var recs []*models.PendingRecord
	for rows.Next() {
		rec, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("iterate pending: %w", err))
	}
	return recs, nil
}

func (p *Postgres) ListBanks(ctx context.Context) ([]models.Bank, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, slug, aliases FROM banks ORDER BY name`)
	if err != nil {
		return nil, mapError(fmt.Errorf("list banks: %w", err))
	}
	defer rows.Close()

	var banks []models.Bank
	for rows.Next() {
		var b models.Bank
		if err := rows.Scan(&b.ID, &b.Name, &b.Slug, &b.Aliases); err != nil {
			return nil, mapError(fmt.Errorf("scan bank: %w", err))
		}
		banks = append(banks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(fmt.Errorf("iterate banks: %w", err))
	}
	return banks, nil
}

func (p *Postgres) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM published_records WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, mapError(fmt.Errorf("check slug: %w", err))
	}
	return exists, nil
}

func (p *Postgres) GetPublished(ctx context.Context, id uuid.UUID) (*models.PublishedRecord, error) {
	var pub models.PublishedRecord
	err := p.pool.QueryRow(ctx, `
		SELECT id, title, slug, category, bank_id, expires_at, body, status, created_at, updated_at
		FROM published_records WHERE id = $1`, id).Scan(
		&pub.ID,
		&pub.Title,
		&pub.Slug,
		&pub.Category,
		&pub.BankID,
		&pub.ExpiresAt,
		&pub.Body,
		&pub.Status,
		&pub.CreatedAt,
		&pub.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mapError(fmt.Errorf("get published: %w", err))
	}
	return &pub, nil
}

// ApprovePending runs the approve step as one transaction: insert the
// published record, flip the pending record to approved. A pending record
// that is already approved makes the update match zero rows, which aborts
// the whole transaction with ErrConflict.
func (p *Postgres) ApprovePending(ctx context.Context, rec *models.PendingRecord, pub *models.PublishedRecord) error {
	if pub.ID == uuid.Nil {
		pub.ID = uuid.New()
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError(fmt.Errorf("begin approve tx: %w", err))
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO published_records (id, title, slug, category, bank_id, expires_at, body, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		pub.ID,
		pub.Title,
		pub.Slug,
		pub.Category,
		pub.BankID,
		pub.ExpiresAt,
		pub.Body,
		pub.Status,
	).Scan(&pub.CreatedAt, &pub.UpdatedAt)
	if err != nil {
		return mapError(fmt.Errorf("insert published: %w", err))
	}

	tag, err := tx.Exec(ctx, `
		UPDATE pending_records
		SET status = $2, published_record_id = $3, updated_at = NOW()
		WHERE id = $1 AND status <> $2`,
		rec.ID, models.StatusApproved, pub.ID)
	if err != nil {
		return mapError(fmt.Errorf("mark pending approved: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: pending record already approved", ErrConflict)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("commit approve tx: %w", err))
	}

	rec.Status = models.StatusApproved
	rec.PublishedRecordID = &pub.ID
	rec.UpdatedAt = time.Now()
	return nil
}
