package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/offerwire/promofeed/internal/cache"
	"github.com/offerwire/promofeed/internal/store"
)

func validItem(url string) ImportItem {
	return ImportItem{
		SourceURL:    url,
		Text:         "HDFC 10% cashback on groceries this weekend",
		AuthorHandle: "cardoffers",
		AuthorName:   "Card Offers",
		PostedAt:     time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func TestImportBatch(t *testing.T) {
	st := store.NewMemory()
	im := NewImporter(st, cache.NewMockCache(), time.Hour)

	items := []ImportItem{
		validItem("https://x.com/cardoffers/status/1111"),
		validItem("https://twitter.com/cardoffers/status/2222"),
		{SourceURL: "https://x.com/cardoffers/status/3333", AuthorHandle: "cardoffers", PostedAt: time.Now()}, // no text
	}

	res := im.Import(context.Background(), items)
	if res.Imported != 2 {
		t.Errorf("imported = %d, want 2", res.Imported)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("failed = %d, want 1", len(res.Failed))
	}
	if res.Failed[0].SourceURL != "https://x.com/cardoffers/status/3333" {
		t.Errorf("failed url = %q", res.Failed[0].SourceURL)
	}
}

func TestImportIdempotent(t *testing.T) {
	st := store.NewMemory()
	im := NewImporter(st, cache.NewMockCache(), time.Hour)
	ctx := context.Background()

	first := im.Import(ctx, []ImportItem{validItem("https://x.com/cardoffers/status/42")})
	if first.Imported != 1 {
		t.Fatalf("first import = %+v", first)
	}

	// Same URL again, even with different text, is a skip, never an error.
	dup := validItem("https://x.com/cardoffers/status/42")
	dup.Text = "completely different wording of the same tweet"
	second := im.Import(ctx, []ImportItem{dup})
	if second.Skipped != 1 || second.Imported != 0 || len(second.Failed) != 0 {
		t.Errorf("second import = %+v, want 1 skip", second)
	}

	// Different URL with identical text is a distinct post.
	other := validItem("https://x.com/cardoffers/status/43")
	third := im.Import(ctx, []ImportItem{other})
	if third.Imported != 1 {
		t.Errorf("third import = %+v, want 1 import", third)
	}
}

func TestImportDedupWithoutCache(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	// Two importers sharing the store but not the cache: the second one's
	// cache is cold, so dedup must come from the store conflict.
	first := NewImporter(st, cache.NewMockCache(), time.Hour)
	second := NewImporter(st, cache.NewMockCache(), time.Hour)

	first.Import(ctx, []ImportItem{validItem("https://x.com/cardoffers/status/7")})
	res := second.Import(ctx, []ImportItem{validItem("https://x.com/cardoffers/status/7")})
	if res.Skipped != 1 || len(res.Failed) != 0 {
		t.Errorf("result = %+v, want 1 skip via store conflict", res)
	}
}

func TestImportRejectsUnknownURLShape(t *testing.T) {
	st := store.NewMemory()
	im := NewImporter(st, cache.NewMockCache(), time.Hour)

	item := validItem("https://example.com/some/article")
	res := im.Import(context.Background(), []ImportItem{item})
	if len(res.Failed) != 1 || res.Imported != 0 {
		t.Fatalf("result = %+v, want 1 failure", res)
	}
}

func TestImportFillsSourceID(t *testing.T) {
	st := store.NewMemory()
	im := NewImporter(st, cache.NewMockCache(), time.Hour)
	ctx := context.Background()

	url := "https://x.com/cardoffers/status/1234567890"
	im.Import(ctx, []ImportItem{validItem(url)})

	post, err := st.GetSourcePostByURL(ctx, url)
	if err != nil {
		t.Fatalf("GetSourcePostByURL: %v", err)
	}
	if post.SourceID != "1234567890" {
		t.Errorf("source id = %q, want status id from URL", post.SourceID)
	}
}
