package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/offerwire/promofeed/internal/cache"
	"github.com/offerwire/promofeed/internal/logger"
	"github.com/offerwire/promofeed/internal/models"
	"github.com/offerwire/promofeed/internal/store"
)

// tweetURLPattern recognizes the source-URL shapes we can extract a status
// id from.
var tweetURLPattern = regexp.MustCompile(`^https?://(?:www\.)?(?:twitter\.com|x\.com)/[A-Za-z0-9_]+/status(?:es)?/(\d+)`)

// ImportItem is one candidate post in an import batch.
type ImportItem struct {
	SourceURL    string    `json:"source_url" validate:"required,url"`
	SourceID     string    `json:"source_id"`
	Text         string    `json:"text" validate:"required"`
	AuthorHandle string    `json:"author_handle" validate:"required"`
	AuthorName   string    `json:"author_name"`
	PostedAt     time.Time `json:"posted_at" validate:"required"`
}

// ItemFailure records why a single item failed without aborting its batch.
type ItemFailure struct {
	SourceURL string `json:"source_url"`
	Reason    string `json:"reason"`
}

// ImportResult summarizes a batch import.
type ImportResult struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Failed   []ItemFailure `json:"failed"`
}

// Importer persists candidate posts as immutable source records,
// deduplicating by source URL. Re-importing a known URL is a no-op.
type Importer struct {
	store    store.Store
	cache    cache.Cache
	validate *validator.Validate
	cacheTTL time.Duration
}

// NewImporter wires the importer. cache may be a MockCache when Redis is
// unavailable.
func NewImporter(st store.Store, c cache.Cache, cacheTTL time.Duration) *Importer {
	return &Importer{
		store:    st,
		cache:    c,
		validate: validator.New(),
		cacheTTL: cacheTTL,
	}
}

// Import processes a batch. A bad item is collected as a failure and never
// aborts its siblings.
func (im *Importer) Import(ctx context.Context, items []ImportItem) ImportResult {
	log := logger.Get()
	var res ImportResult

	for _, item := range items {
		switch outcome, err := im.importOne(ctx, item); {
		case err != nil:
			log.Warn().
				Str("source_url", item.SourceURL).
				Err(err).
				Msg("import item failed")
			res.Failed = append(res.Failed, ItemFailure{
				SourceURL: item.SourceURL,
				Reason:    err.Error(),
			})
		case outcome == outcomeSkipped:
			res.Skipped++
		default:
			res.Imported++
		}
	}

	log.Info().
		Int("imported", res.Imported).
		Int("skipped", res.Skipped).
		Int("failed", len(res.Failed)).
		Msg("import batch finished")
	return res
}

type importOutcome int

const (
	outcomeImported importOutcome = iota
	outcomeSkipped
)

func (im *Importer) importOne(ctx context.Context, item ImportItem) (importOutcome, error) {
	if err := im.validate.Struct(item); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return 0, fmt.Errorf("invalid field %q (%s)", verrs[0].Field(), verrs[0].Tag())
		}
		return 0, err
	}

	match := tweetURLPattern.FindStringSubmatch(item.SourceURL)
	if match == nil {
		return 0, fmt.Errorf("unrecognized tweet URL shape: %s", item.SourceURL)
	}
	if item.SourceID == "" {
		item.SourceID = match[1]
	}

	// Cache fast path; a cache error just falls through to the store.
	if seen, err := im.cache.IsSeen(ctx, item.SourceURL); err == nil && seen {
		return outcomeSkipped, nil
	} else if err != nil {
		logger.Get().Debug().Err(err).Msg("seen-cache lookup failed, falling back to store")
	}

	post := &models.SourcePost{
		SourceURL:    item.SourceURL,
		SourceID:     item.SourceID,
		Text:         item.Text,
		AuthorHandle: item.AuthorHandle,
		AuthorName:   item.AuthorName,
		PostedAt:     item.PostedAt,
	}

	err := im.store.CreateSourcePost(ctx, post)
	switch {
	case errors.Is(err, store.ErrConflict):
		im.markSeen(ctx, item.SourceURL)
		return outcomeSkipped, nil
	case err != nil:
		return 0, err
	}

	im.markSeen(ctx, item.SourceURL)
	return outcomeImported, nil
}

func (im *Importer) markSeen(ctx context.Context, sourceURL string) {
	if err := im.cache.MarkSeen(ctx, sourceURL, im.cacheTTL); err != nil {
		logger.Get().Debug().Err(err).Str("source_url", sourceURL).Msg("seen-cache mark failed")
	}
}
