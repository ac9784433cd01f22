package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/offerwire/promofeed/internal/ai"
	"github.com/offerwire/promofeed/internal/models"
	"github.com/offerwire/promofeed/internal/store"
)

type stubCapability struct {
	relevance func(models.SourcePost) (ai.RelevanceResult, error)
	category  func(models.SourcePost) (ai.CategoryResult, error)
	extract   func(models.SourcePost, models.Category) (ai.ExtractionResult, error)
}

func (s *stubCapability) ClassifyRelevance(_ context.Context, post models.SourcePost) (ai.RelevanceResult, error) {
	if s.relevance == nil {
		return ai.RelevanceResult{IsRelevant: true, Confidence: 90}, nil
	}
	return s.relevance(post)
}

func (s *stubCapability) ClassifyCategory(_ context.Context, post models.SourcePost) (ai.CategoryResult, error) {
	if s.category == nil {
		return ai.CategoryResult{Category: models.CategorySpendOffer, Confidence: 90}, nil
	}
	return s.category(post)
}

func (s *stubCapability) ExtractFields(_ context.Context, post models.SourcePost, cat models.Category) (ai.ExtractionResult, error) {
	if s.extract == nil {
		return spendOfferExtraction(), nil
	}
	return s.extract(post, cat)
}

func spendOfferExtraction() ai.ExtractionResult {
	return ai.ExtractionResult{
		Fields: json.RawMessage(`{
			"offer_title": "10% back at GroceryMart",
			"detail_content": "Pay with your HDFC card, get 10% back.",
			"bank_name": "HDFC",
			"expiry_date": "2026-10-31"
		}`),
		FieldConfidence: map[string]int{"offer_title": 95, "bank_name": 85},
		Confidence:      90,
	}
}

func seedPost(t *testing.T, st *store.Memory, url string) uuid.UUID {
	t.Helper()
	post := &models.SourcePost{
		SourceURL:    url,
		SourceID:     "1",
		Text:         "HDFC 10% cashback at GroceryMart till Oct 31",
		AuthorHandle: "cardoffers",
		PostedAt:     time.Now(),
	}
	if err := st.CreateSourcePost(context.Background(), post); err != nil {
		t.Fatalf("seed post: %v", err)
	}
	return post.ID
}

func seedBanks(st *store.Memory) {
	st.SeedBanks([]models.Bank{
		{ID: uuid.New(), Name: "HDFC Bank", Slug: "hdfc-bank", Aliases: []string{"HDFC"}},
		{ID: uuid.New(), Name: "ICICI Bank", Slug: "icici-bank", Aliases: []string{"ICICI"}},
	})
}

func TestProcessBatchHappyPath(t *testing.T) {
	st := store.NewMemory()
	seedBanks(st)
	id := seedPost(t, st, "https://x.com/cardoffers/status/1")
	p := NewProcessor(st, &stubCapability{}, 2)
	ctx := context.Background()

	res, err := p.ProcessBatch(ctx, []uuid.UUID{id})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if res.Processed != 1 || res.Irrelevant != 0 || len(res.Failed) != 0 {
		t.Fatalf("result = %+v", res)
	}

	rec, err := st.GetPendingBySource(ctx, id)
	if err != nil {
		t.Fatalf("GetPendingBySource: %v", err)
	}
	if rec.Category != models.CategorySpendOffer {
		t.Errorf("category = %s", rec.Category)
	}
	// 0.4*90 relevance + 0.6*90 extraction.
	if rec.OverallConfidence != 90 {
		t.Errorf("overall confidence = %d, want 90", rec.OverallConfidence)
	}
	if rec.Status != models.StatusPendingApproval {
		t.Errorf("status = %s, want pending_approval", rec.Status)
	}
	if rec.BankID == nil {
		t.Error("alias match at 95 should auto-associate the bank")
	}
	if rec.BankName != "HDFC Bank" {
		t.Errorf("bank name = %q, want canonical name", rec.BankName)
	}

	post, _ := st.GetSourcePost(ctx, id)
	if !post.Processed || post.Relevant == nil || !*post.Relevant {
		t.Error("source post should be marked processed and relevant")
	}
}

func TestProcessBatchIrrelevant(t *testing.T) {
	st := store.NewMemory()
	seedBanks(st)
	id := seedPost(t, st, "https://x.com/cardoffers/status/2")
	capability := &stubCapability{
		relevance: func(models.SourcePost) (ai.RelevanceResult, error) {
			return ai.RelevanceResult{IsRelevant: false, Confidence: 88, Reason: "vacation photo"}, nil
		},
	}
	p := NewProcessor(st, capability, 1)
	ctx := context.Background()

	res, err := p.ProcessBatch(ctx, []uuid.UUID{id})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if res.Irrelevant != 1 || res.Processed != 0 {
		t.Fatalf("result = %+v", res)
	}

	if _, err := st.GetPendingBySource(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Error("irrelevant post must not produce a pending record")
	}
	post, _ := st.GetSourcePost(ctx, id)
	if !post.Processed || post.Relevant == nil || *post.Relevant {
		t.Error("source post should be marked processed and not relevant")
	}
}

func TestProcessExtractionFailureFallsBack(t *testing.T) {
	st := store.NewMemory()
	seedBanks(st)
	id := seedPost(t, st, "https://x.com/cardoffers/status/3")
	capability := &stubCapability{
		extract: func(models.SourcePost, models.Category) (ai.ExtractionResult, error) {
			return ai.ExtractionResult{}, &ai.CapabilityError{Stage: "extraction", Err: errors.New("boom")}
		},
	}
	p := NewProcessor(st, capability, 1)
	ctx := context.Background()

	res, err := p.ProcessBatch(ctx, []uuid.UUID{id})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if res.Processed != 1 {
		t.Fatalf("result = %+v, fallback still counts as processed", res)
	}

	rec, err := st.GetPendingBySource(ctx, id)
	if err != nil {
		t.Fatalf("GetPendingBySource: %v", err)
	}
	if rec.Category != models.CategoryOther {
		t.Errorf("category = %s, want OTHER", rec.Category)
	}
	if rec.OverallConfidence != 0 {
		t.Errorf("confidence = %d, want 0", rec.OverallConfidence)
	}
	if rec.Status != models.StatusNeedsManualEntry {
		t.Errorf("status = %s, want needs_manual_entry", rec.Status)
	}
	fs, err := rec.DecodeFields()
	if err != nil {
		t.Fatalf("DecodeFields: %v", err)
	}
	if fs.Detail() != "HDFC 10% cashback at GroceryMart till Oct 31" {
		t.Errorf("raw text not preserved: %q", fs.Detail())
	}
	if !strings.Contains(rec.ReviewerNotes, "Automatic extraction failed") {
		t.Errorf("notes = %q", rec.ReviewerNotes)
	}
}

func TestProcessNoUsableTitleFallsBack(t *testing.T) {
	st := store.NewMemory()
	seedBanks(st)
	id := seedPost(t, st, "https://x.com/cardoffers/status/4")
	capability := &stubCapability{
		extract: func(models.SourcePost, models.Category) (ai.ExtractionResult, error) {
			return ai.ExtractionResult{
				Fields:     json.RawMessage(`{"detail_content": "something", "bank_name": "HDFC"}`),
				Confidence: 90,
			}, nil
		},
	}
	p := NewProcessor(st, capability, 1)
	ctx := context.Background()

	if _, err := p.ProcessBatch(ctx, []uuid.UUID{id}); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	rec, err := st.GetPendingBySource(ctx, id)
	if err != nil {
		t.Fatalf("GetPendingBySource: %v", err)
	}
	if rec.Category != models.CategoryOther || rec.Status != models.StatusNeedsManualEntry {
		t.Errorf("category=%s status=%s, want OTHER/needs_manual_entry", rec.Category, rec.Status)
	}
}

func TestProcessNonActionableCategory(t *testing.T) {
	st := store.NewMemory()
	seedBanks(st)
	id := seedPost(t, st, "https://x.com/cardoffers/status/5")
	extractCalled := false
	capability := &stubCapability{
		category: func(models.SourcePost) (ai.CategoryResult, error) {
			return ai.CategoryResult{Category: models.CategoryNews, Confidence: 80}, nil
		},
		extract: func(models.SourcePost, models.Category) (ai.ExtractionResult, error) {
			extractCalled = true
			return ai.ExtractionResult{}, nil
		},
	}
	p := NewProcessor(st, capability, 1)
	ctx := context.Background()

	if _, err := p.ProcessBatch(ctx, []uuid.UUID{id}); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if extractCalled {
		t.Error("non-actionable categories must skip extraction")
	}

	rec, err := st.GetPendingBySource(ctx, id)
	if err != nil {
		t.Fatalf("GetPendingBySource: %v", err)
	}
	if rec.Category != models.CategoryNews {
		t.Errorf("category = %s", rec.Category)
	}
	// 0.4*90 relevance + 0.6*80 category.
	if rec.OverallConfidence != 84 {
		t.Errorf("confidence = %d, want 84", rec.OverallConfidence)
	}
	fs, _ := rec.DecodeFields()
	if fs.Detail() == "" {
		t.Error("raw text should carry through for non-actionable categories")
	}
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	st := store.NewMemory()
	seedBanks(st)
	good := seedPost(t, st, "https://x.com/cardoffers/status/6")
	missing := uuid.New()
	p := NewProcessor(st, &stubCapability{}, 2)

	res, err := p.ProcessBatch(context.Background(), []uuid.UUID{missing, good})
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if res.Processed != 1 || len(res.Failed) != 1 {
		t.Fatalf("result = %+v, want 1 processed and 1 failed", res)
	}
	if res.Failed[0].SourcePostID != missing {
		t.Errorf("failure id = %s, want the missing post id", res.Failed[0].SourcePostID)
	}
}

func TestProcessBatchRefusesTerminalRecords(t *testing.T) {
	st := store.NewMemory()
	seedBanks(st)
	id := seedPost(t, st, "https://x.com/cardoffers/status/11")
	p := NewProcessor(st, &stubCapability{}, 1)
	ctx := context.Background()

	if _, err := p.ProcessBatch(ctx, []uuid.UUID{id}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	rec, _ := st.GetPendingBySource(ctx, id)
	pub := &models.PublishedRecord{
		Title:    "10% back at GroceryMart",
		Slug:     "10-back-at-grocerymart",
		Category: rec.Category,
		Status:   models.PublishedStatusDraft,
	}
	if err := st.ApprovePending(ctx, rec, pub); err != nil {
		t.Fatalf("approve: %v", err)
	}

	res, err := p.ProcessBatch(ctx, []uuid.UUID{id})
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if res.Processed != 0 || len(res.Failed) != 1 {
		t.Fatalf("result = %+v, want the item refused", res)
	}
	if !strings.Contains(res.Failed[0].Reason, "approved") {
		t.Errorf("reason = %q", res.Failed[0].Reason)
	}

	after, _ := st.GetPending(ctx, rec.ID)
	if after.Status != models.StatusApproved {
		t.Errorf("status after re-process = %s, want approved untouched", after.Status)
	}
	if after.PublishedRecordID == nil || *after.PublishedRecordID != pub.ID {
		t.Error("published record link must survive a re-process attempt")
	}
}

func TestProcessBatchRefusesRejectedRecords(t *testing.T) {
	st := store.NewMemory()
	seedBanks(st)
	id := seedPost(t, st, "https://x.com/cardoffers/status/12")
	p := NewProcessor(st, &stubCapability{}, 1)
	ctx := context.Background()

	if _, err := p.ProcessBatch(ctx, []uuid.UUID{id}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	rec, _ := st.GetPendingBySource(ctx, id)
	rec.Status = models.StatusRejected
	if err := st.UpdatePending(ctx, rec); err != nil {
		t.Fatalf("UpdatePending: %v", err)
	}

	res, err := p.ProcessBatch(ctx, []uuid.UUID{id})
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("result = %+v, want the item refused", res)
	}
	after, _ := st.GetPending(ctx, rec.ID)
	if after.Status != models.StatusRejected {
		t.Errorf("status after re-process = %s, want rejected untouched", after.Status)
	}
}

func TestProcessBatchUpsertsSingleRecord(t *testing.T) {
	st := store.NewMemory()
	seedBanks(st)
	id := seedPost(t, st, "https://x.com/cardoffers/status/7")
	p := NewProcessor(st, &stubCapability{}, 1)
	ctx := context.Background()

	if _, err := p.ProcessBatch(ctx, []uuid.UUID{id}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	first, _ := st.GetPendingBySource(ctx, id)

	if _, err := p.ProcessBatch(ctx, []uuid.UUID{id}); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	second, _ := st.GetPendingBySource(ctx, id)

	if first.ID != second.ID {
		t.Error("processing the same source twice must reuse the pending record")
	}
	recs, _ := st.ListPending(ctx, store.PendingFilter{})
	if len(recs) != 1 {
		t.Errorf("pending records = %d, want exactly 1 per source", len(recs))
	}
}

func TestReprocessOverwritesAndResetsStatus(t *testing.T) {
	st := store.NewMemory()
	seedBanks(st)
	id := seedPost(t, st, "https://x.com/cardoffers/status/8")
	ctx := context.Background()

	// First pass fails extraction, landing in manual entry.
	failing := &stubCapability{
		extract: func(models.SourcePost, models.Category) (ai.ExtractionResult, error) {
			return ai.ExtractionResult{}, errors.New("model unavailable")
		},
	}
	if _, err := NewProcessor(st, failing, 1).ProcessBatch(ctx, []uuid.UUID{id}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	before, _ := st.GetPendingBySource(ctx, id)
	if before.Status != models.StatusNeedsManualEntry {
		t.Fatalf("precondition: status = %s", before.Status)
	}

	// Second pass succeeds with high confidence; status must still land in
	// pending_review for human re-triage.
	p := NewProcessor(st, &stubCapability{}, 1)
	rec, err := p.Reprocess(ctx, before.ID)
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if rec.ID != before.ID {
		t.Error("reprocess must overwrite the same record")
	}
	if rec.Category != models.CategorySpendOffer {
		t.Errorf("category = %s", rec.Category)
	}
	if rec.OverallConfidence != 90 {
		t.Errorf("confidence = %d, want 90", rec.OverallConfidence)
	}
	if rec.Status != models.StatusPendingReview {
		t.Errorf("status = %s, want pending_review regardless of confidence", rec.Status)
	}
	if !strings.Contains(rec.ReviewerNotes, "Automatic extraction failed") ||
		!strings.Contains(rec.ReviewerNotes, "Reprocessed") {
		t.Errorf("notes should accumulate history, got %q", rec.ReviewerNotes)
	}

	recs, _ := st.ListPending(ctx, store.PendingFilter{})
	if len(recs) != 1 {
		t.Errorf("pending records = %d, want 1", len(recs))
	}
}

func TestReprocessIrrelevantAnnotatesInsteadOfDeleting(t *testing.T) {
	st := store.NewMemory()
	seedBanks(st)
	id := seedPost(t, st, "https://x.com/cardoffers/status/9")
	ctx := context.Background()

	if _, err := NewProcessor(st, &stubCapability{}, 1).ProcessBatch(ctx, []uuid.UUID{id}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	before, _ := st.GetPendingBySource(ctx, id)

	nowIrrelevant := &stubCapability{
		relevance: func(models.SourcePost) (ai.RelevanceResult, error) {
			return ai.RelevanceResult{IsRelevant: false, Confidence: 70}, nil
		},
	}
	rec, err := NewProcessor(st, nowIrrelevant, 1).Reprocess(ctx, before.ID)
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if rec.Status != models.StatusPendingReview {
		t.Errorf("status = %s, want pending_review", rec.Status)
	}
	if !strings.Contains(rec.ReviewerNotes, "left for manual rejection") {
		t.Errorf("notes = %q", rec.ReviewerNotes)
	}
	if _, err := st.GetPending(ctx, before.ID); err != nil {
		t.Error("reprocess must never delete the record")
	}
	post, _ := st.GetSourcePost(ctx, id)
	if post.Relevant == nil || *post.Relevant {
		t.Error("source post should be re-marked not relevant")
	}
}

func TestReprocessTerminalRecord(t *testing.T) {
	st := store.NewMemory()
	seedBanks(st)
	id := seedPost(t, st, "https://x.com/cardoffers/status/10")
	ctx := context.Background()

	p := NewProcessor(st, &stubCapability{}, 1)
	if _, err := p.ProcessBatch(ctx, []uuid.UUID{id}); err != nil {
		t.Fatalf("batch: %v", err)
	}
	rec, _ := st.GetPendingBySource(ctx, id)
	rec.Status = models.StatusRejected
	if err := st.UpdatePending(ctx, rec); err != nil {
		t.Fatalf("UpdatePending: %v", err)
	}

	if _, err := p.Reprocess(ctx, rec.ID); !errors.Is(err, store.ErrConflict) {
		t.Errorf("Reprocess on terminal record: err = %v, want ErrConflict", err)
	}
}

func TestCombineConfidence(t *testing.T) {
	tests := []struct{ rel, ext, want int }{
		{90, 90, 90},
		{100, 0, 40},
		{0, 100, 60},
		{90, 80, 84},
		{75, 50, 60},
	}
	for _, tt := range tests {
		if got := combineConfidence(tt.rel, tt.ext); got != tt.want {
			t.Errorf("combineConfidence(%d, %d) = %d, want %d", tt.rel, tt.ext, got, tt.want)
		}
	}
}

func TestExtractionConfidenceFallsBackToFieldMean(t *testing.T) {
	ext := ai.ExtractionResult{
		FieldConfidence: map[string]int{"a": 80, "b": 60, "c": 70},
	}
	if got := extractionConfidence(ext); got != 70 {
		t.Errorf("mean fallback = %d, want 70", got)
	}

	ext.Confidence = 95
	if got := extractionConfidence(ext); got != 95 {
		t.Errorf("reported score should win, got %d", got)
	}

	if got := extractionConfidence(ai.ExtractionResult{}); got != 0 {
		t.Errorf("empty result = %d, want 0", got)
	}
}
