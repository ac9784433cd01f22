package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/offerwire/promofeed/internal/ai"
	"github.com/offerwire/promofeed/internal/bankmatch"
	"github.com/offerwire/promofeed/internal/logger"
	"github.com/offerwire/promofeed/internal/models"
	"github.com/offerwire/promofeed/internal/store"
	"golang.org/x/sync/errgroup"
)

// Capability is the language-understanding collaborator. All three stage
// calls for one item run sequentially; items run concurrently.
type Capability interface {
	ClassifyRelevance(ctx context.Context, post models.SourcePost) (ai.RelevanceResult, error)
	ClassifyCategory(ctx context.Context, post models.SourcePost) (ai.CategoryResult, error)
	ExtractFields(ctx context.Context, post models.SourcePost, cat models.Category) (ai.ExtractionResult, error)
}

// ProcessFailure records why one source post could not be processed.
type ProcessFailure struct {
	SourcePostID uuid.UUID `json:"source_post_id"`
	Reason       string    `json:"reason"`
}

// BatchResult summarizes one processing run.
type BatchResult struct {
	Processed  int              `json:"processed"`
	Irrelevant int              `json:"irrelevant"`
	Failed     []ProcessFailure `json:"failed"`
}

// Processor runs classification, extraction, bank matching, and confidence
// routing over imported source posts.
type Processor struct {
	store       store.Store
	capability  Capability
	concurrency int
}

// NewProcessor wires the pipeline stages.
func NewProcessor(st store.Store, capability Capability, concurrency int) *Processor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Processor{store: st, capability: capability, concurrency: concurrency}
}

// ProcessBatch classifies the given source posts with bounded parallelism.
// Each item's failure is recorded and never aborts its siblings.
func (p *Processor) ProcessBatch(ctx context.Context, ids []uuid.UUID) (BatchResult, error) {
	log := logger.Get()
	start := time.Now()

	banks, err := p.store.ListBanks(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("load bank registry: %w", err)
	}
	matcher := bankmatch.New(banks)

	var (
		mu  sync.Mutex
		res BatchResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			outcome, err := p.processOne(gctx, id, matcher)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Error().Str("source_post_id", id.String()).Err(err).Msg("process item failed")
				res.Failed = append(res.Failed, ProcessFailure{
					SourcePostID: id,
					Reason:       err.Error(),
				})
				return nil
			}
			if outcome == outcomeIrrelevant {
				res.Irrelevant++
			} else {
				res.Processed++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return res, err
	}

	log.Info().
		Int("processed", res.Processed).
		Int("irrelevant", res.Irrelevant).
		Int("failed", len(res.Failed)).
		Dur("duration", time.Since(start)).
		Msg("batch processing finished")
	return res, nil
}

type processOutcome int

const (
	outcomeProcessed processOutcome = iota
	outcomeIrrelevant
)

func (p *Processor) processOne(ctx context.Context, id uuid.UUID, matcher *bankmatch.Matcher) (processOutcome, error) {
	post, err := p.store.GetSourcePost(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("load source post: %w", err)
	}

	// A terminal pending record must never be overwritten; once approved it
	// backs a published record, once rejected it stays rejected.
	switch existing, err := p.store.GetPendingBySource(ctx, id); {
	case err == nil:
		if existing.Status.Terminal() {
			return 0, fmt.Errorf("%w: source already has a %s record", store.ErrConflict, existing.Status)
		}
	case !errors.Is(err, store.ErrNotFound):
		return 0, fmt.Errorf("check existing pending record: %w", err)
	}

	rec, relevant, err := p.classify(ctx, *post, matcher)
	if err != nil {
		return 0, err
	}
	if !relevant {
		if err := p.store.MarkSourceProcessed(ctx, post.ID, false); err != nil {
			return 0, fmt.Errorf("mark irrelevant: %w", err)
		}
		return outcomeIrrelevant, nil
	}

	rec.SourcePostID = post.ID
	if err := p.store.UpsertPendingForSource(ctx, rec); err != nil {
		return 0, fmt.Errorf("save pending record: %w", err)
	}
	if err := p.store.MarkSourceProcessed(ctx, post.ID, true); err != nil {
		return 0, fmt.Errorf("mark processed: %w", err)
	}
	return outcomeProcessed, nil
}

// classify runs the capability stages for one post and builds the pending
// record. relevant=false means no record should be created. Capability
// failures degrade to the manual-entry fallback instead of erroring: raw
// text is never dropped.
func (p *Processor) classify(ctx context.Context, post models.SourcePost, matcher *bankmatch.Matcher) (*models.PendingRecord, bool, error) {
	log := logger.Get()

	rel, err := p.capability.ClassifyRelevance(ctx, post)
	if err != nil {
		log.Warn().Str("source_url", post.SourceURL).Err(err).Msg("relevance stage failed, falling back to manual entry")
		return fallbackRecord(post, err), true, nil
	}
	if !rel.IsRelevant {
		log.Debug().Str("source_url", post.SourceURL).Str("reason", rel.Reason).Msg("post not relevant")
		return nil, false, nil
	}

	cat, err := p.capability.ClassifyCategory(ctx, post)
	if err != nil {
		log.Warn().Str("source_url", post.SourceURL).Err(err).Msg("category stage failed, falling back to manual entry")
		return fallbackRecord(post, err), true, nil
	}

	if !cat.Category.Actionable() {
		fields, _ := models.EncodeFields(&models.OtherFields{DetailContent: post.Text})
		confidence := combineConfidence(rel.Confidence, cat.Confidence)
		return &models.PendingRecord{
			Category:          cat.Category,
			Fields:            fields,
			FieldConfidence:   map[string]int{},
			OverallConfidence: confidence,
			Status:            models.RouteByConfidence(confidence),
		}, true, nil
	}

	ext, err := p.capability.ExtractFields(ctx, post, cat.Category)
	if err != nil {
		log.Warn().Str("source_url", post.SourceURL).Err(err).Msg("extraction stage failed, falling back to manual entry")
		return fallbackRecord(post, err), true, nil
	}

	fs, err := models.DecodeFields(cat.Category, ext.Fields)
	if err != nil {
		return fallbackRecord(post, err), true, nil
	}
	if fs.Title() == "" && fs.Headline() == "" {
		// Relevant but no usable title: route to manual entry with the
		// raw text preserved.
		return fallbackRecord(post, fmt.Errorf("extraction produced no usable title")), true, nil
	}

	rec := &models.PendingRecord{
		Category:          cat.Category,
		Fields:            ext.Fields,
		FieldConfidence:   ext.FieldConfidence,
		OverallConfidence: combineConfidence(rel.Confidence, extractionConfidence(ext)),
	}
	rec.Status = models.RouteByConfidence(rec.OverallConfidence)

	if match := matcher.Match(fs.Bank()); match.AutoAssociate() {
		rec.BankID = match.MatchedID
		rec.BankName = match.MatchedName
	} else if fs.Bank() != "" {
		rec.BankName = fs.Bank()
	}

	return rec, true, nil
}

// Reprocess re-runs the full classification against the original source post
// and overwrites the existing pending record in place. Status always resets
// to pending_review so a human re-triages, and notes are appended rather
// than replaced.
func (p *Processor) Reprocess(ctx context.Context, pendingID uuid.UUID) (*models.PendingRecord, error) {
	rec, err := p.store.GetPending(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(rec.Status, models.StatusPendingReview) {
		return nil, fmt.Errorf("%w: cannot reprocess %s record", store.ErrConflict, rec.Status)
	}

	post, err := p.store.GetSourcePost(ctx, rec.SourcePostID)
	if err != nil {
		return nil, fmt.Errorf("load source post: %w", err)
	}

	banks, err := p.store.ListBanks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bank registry: %w", err)
	}

	fresh, relevant, err := p.classify(ctx, *post, bankmatch.New(banks))
	if err != nil {
		return nil, err
	}

	now := time.Now().Format(time.RFC3339)
	if !relevant {
		// A human may have invested edits; annotate and leave for them
		// to reject instead of deleting.
		rec.AppendNote(fmt.Sprintf("[%s] Reprocess: classified irrelevant; left for manual rejection", now))
		rec.Status = models.StatusPendingReview
		if err := p.store.UpdatePending(ctx, rec); err != nil {
			return nil, err
		}
		if err := p.store.MarkSourceProcessed(ctx, post.ID, false); err != nil {
			return nil, err
		}
		return rec, nil
	}

	rec.Category = fresh.Category
	rec.Fields = fresh.Fields
	rec.FieldConfidence = fresh.FieldConfidence
	rec.OverallConfidence = fresh.OverallConfidence
	rec.BankID = fresh.BankID
	rec.BankName = fresh.BankName
	rec.Status = models.StatusPendingReview
	rec.AppendNote(fmt.Sprintf("[%s] Reprocessed: category %s, confidence %d", now, rec.Category, rec.OverallConfidence))

	if err := p.store.UpdatePending(ctx, rec); err != nil {
		return nil, err
	}
	if err := p.store.MarkSourceProcessed(ctx, post.ID, true); err != nil {
		return nil, err
	}
	return rec, nil
}

// combineConfidence folds the relevance and extraction scores into the
// overall routing confidence, weighting the more structured stage heavier.
func combineConfidence(relevance, extraction int) int {
	return int(math.Round(0.4*float64(relevance) + 0.6*float64(extraction)))
}

// extractionConfidence prefers the model-reported overall score and falls
// back to the mean of the per-field map.
func extractionConfidence(ext ai.ExtractionResult) int {
	if ext.Confidence > 0 {
		return ext.Confidence
	}
	if len(ext.FieldConfidence) == 0 {
		return 0
	}
	sum := 0
	for _, v := range ext.FieldConfidence {
		sum += v
	}
	return sum / len(ext.FieldConfidence)
}

// fallbackRecord builds the minimal manual-entry record: category OTHER, no
// title, the full raw text preserved as detail body.
func fallbackRecord(post models.SourcePost, cause error) *models.PendingRecord {
	fields, _ := models.EncodeFields(&models.OtherFields{DetailContent: post.Text})
	rec := &models.PendingRecord{
		Category:          models.CategoryOther,
		Fields:            fields,
		FieldConfidence:   map[string]int{},
		OverallConfidence: 0,
		Status:            models.RouteByConfidence(0),
	}
	rec.AppendNote(fmt.Sprintf("Automatic extraction failed: %v", cause))
	return rec
}
