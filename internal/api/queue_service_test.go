package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"loopdeck/internal/catalog"
	"loopdeck/internal/queue"
	"loopdeck/internal/rights"
	"loopdeck/internal/services"
)

type mockQueueReader struct {
	items    []*queue.Item
	review   []*queue.Item
	stats    map[queue.Status]int
	itemErr  error
	statsErr error
}

func (m *mockQueueReader) List(context.Context, ...queue.Status) ([]*queue.Item, error) {
	return m.items, m.itemErr
}

func (m *mockQueueReader) ListReview(context.Context) ([]*queue.Item, error) {
	return m.review, m.itemErr
}

func (m *mockQueueReader) Stats(context.Context) (map[queue.Status]int, error) {
	return m.stats, m.statsErr
}

func (m *mockQueueReader) GetBySourceID(_ context.Context, sourceID string) (*queue.Item, error) {
	for _, item := range m.items {
		if item.SourceID == sourceID {
			return item, m.itemErr
		}
	}
	return nil, m.itemErr
}

func TestQueueService_List(t *testing.T) {
	now := time.Now().UTC()
	reader := &mockQueueReader{
		items: []*queue.Item{{
			ID:        1,
			SourceID:  "abc",
			Title:     "Example",
			Status:    queue.StatusFetched,
			CreatedAt: now,
			UpdatedAt: now,
		}},
	}
	svc := NewQueueService(reader)
	got, err := svc.List(context.Background(), nil)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("unexpected item count: %d", len(got))
	}
	if got[0].Title != "Example" || got[0].Status != string(queue.StatusFetched) {
		t.Fatalf("unexpected track: %+v", got[0])
	}
	if got[0].CreatedAt == "" || got[0].UpdatedAt == "" {
		t.Fatalf("expected timestamps to be formatted")
	}
}

func TestQueueService_ListError(t *testing.T) {
	svc := NewQueueService(&mockQueueReader{itemErr: errors.New("boom")})
	if _, err := svc.List(context.Background(), nil); err == nil {
		t.Fatal("expected error from List")
	}
}

func TestQueueService_ListRejectsUnknownStatus(t *testing.T) {
	svc := NewQueueService(&mockQueueReader{})
	_, err := svc.List(context.Background(), []string{"failed, bogus"})
	var filterErr *StatusFilterError
	if !errors.As(err, &filterErr) || filterErr.Value != "bogus" {
		t.Fatalf("expected StatusFilterError for bogus, got %v", err)
	}
}

func TestParseStatusFilterSplitsCommas(t *testing.T) {
	got, err := ParseStatusFilter([]string{"failed,published", " ", "rejected"})
	if err != nil {
		t.Fatalf("ParseStatusFilter: %v", err)
	}
	want := []queue.Status{queue.StatusFailed, queue.StatusPublished, queue.StatusRejected}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestQueueService_Review(t *testing.T) {
	svc := NewQueueService(&mockQueueReader{review: []*queue.Item{{SourceID: "held", NeedsReview: true, ReviewReason: "SeamDiscontinuity"}}})
	got, err := svc.Review(context.Background())
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if len(got) != 1 || got[0].Outcome() != "review: SeamDiscontinuity" {
		t.Fatalf("unexpected review list %+v", got)
	}
}

func TestQueueService_Stats(t *testing.T) {
	svc := NewQueueService(&mockQueueReader{stats: map[queue.Status]int{queue.StatusFailed: 3}})
	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats["failed"] != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestQueueService_Describe(t *testing.T) {
	svc := NewQueueService(&mockQueueReader{items: []*queue.Item{{ID: 9, SourceID: "abc"}}})
	got, err := svc.Describe(context.Background(), "abc")
	if err != nil || got == nil || got.ID != 9 {
		t.Fatalf("Describe(abc) = %+v, %v", got, err)
	}
	missing, err := svc.Describe(context.Background(), "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown id, got %+v, %v", missing, err)
	}
}

func TestNilServicesAreSafe(t *testing.T) {
	var qs *QueueService
	if items, err := qs.List(context.Background(), []string{"failed"}); items != nil || err != nil {
		t.Fatal("nil queue service should return nothing")
	}
	var cs *CatalogService
	if rec, err := cs.Rights(context.Background(), "abc", true); rec != nil || err != nil {
		t.Fatal("nil catalog service should return nothing")
	}
}

type mockCatalogReader struct {
	records map[string]rights.Record
	history []rights.HistoryEntry
	entries []catalog.Entry
}

func (m *mockCatalogReader) Rights(_ context.Context, sourceID string) (rights.Record, error) {
	rec, ok := m.records[sourceID]
	if !ok {
		return rights.Record{}, services.Wrap(services.ErrNotFound, "rights", "load record", sourceID, nil)
	}
	return rec, nil
}

func (m *mockCatalogReader) ListRights(context.Context, ...rights.State) ([]rights.Record, error) {
	out := make([]rights.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

func (m *mockCatalogReader) History(context.Context, string) ([]rights.HistoryEntry, error) {
	return m.history, nil
}

func (m *mockCatalogReader) Entry(_ context.Context, sourceID string) (catalog.Entry, error) {
	for _, e := range m.entries {
		if e.SourceID == sourceID {
			return e, nil
		}
	}
	return catalog.Entry{}, services.Wrap(services.ErrNotFound, "catalog", "load entry", sourceID, nil)
}

func (m *mockCatalogReader) ListEntries(context.Context, bool) ([]catalog.Entry, error) {
	return m.entries, nil
}

func TestCatalogService(t *testing.T) {
	now := time.Now().UTC()
	reader := &mockCatalogReader{
		records: map[string]rights.Record{"abc": rights.NewRecord("abc", "up", "lic", "youtube_playlist", now)},
		history: []rights.HistoryEntry{{ID: "h1", FromState: rights.StatePending, ToState: rights.StateCleared, ChangedAt: now}},
		entries: []catalog.Entry{{SourceID: "abc", PublishedAt: now}},
	}
	svc := NewCatalogService(reader)
	ctx := context.Background()

	resp, err := svc.Rights(ctx, "abc", true)
	if err != nil || resp == nil {
		t.Fatalf("Rights: %+v, %v", resp, err)
	}
	if resp.Record.LicenseState != string(rights.StatePending) || len(resp.History) != 1 {
		t.Fatalf("unexpected rights response %+v", resp)
	}
	if missing, err := svc.Rights(ctx, "nope", false); err != nil || missing != nil {
		t.Fatalf("unknown id should be nil: %+v, %v", missing, err)
	}

	entry, err := svc.Entry(ctx, "abc")
	if err != nil || entry == nil || !entry.Live {
		t.Fatalf("Entry: %+v, %v", entry, err)
	}
	if missing, err := svc.Entry(ctx, "nope"); err != nil || missing != nil {
		t.Fatalf("unknown entry should be nil: %+v, %v", missing, err)
	}
	entries, err := svc.Entries(ctx, true)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Entries: %+v, %v", entries, err)
	}
}
