package api

import (
	"context"
	"errors"

	"loopdeck/internal/catalog"
	"loopdeck/internal/rights"
	"loopdeck/internal/services"
)

// CatalogReader abstracts the rights and catalog lookups served by the API.
type CatalogReader interface {
	Rights(ctx context.Context, sourceID string) (rights.Record, error)
	ListRights(ctx context.Context, states ...rights.State) ([]rights.Record, error)
	History(ctx context.Context, sourceID string) ([]rights.HistoryEntry, error)
	Entry(ctx context.Context, sourceID string) (catalog.Entry, error)
	ListEntries(ctx context.Context, liveOnly bool) ([]catalog.Entry, error)
}

// CatalogService exposes read-only rights and catalog queries.
type CatalogService struct {
	store CatalogReader
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(store CatalogReader) *CatalogService {
	if store == nil {
		return nil
	}
	return &CatalogService{store: store}
}

// Rights returns the record for sourceID and optionally its history.
// Unknown ids return nil without error.
func (s *CatalogService) Rights(ctx context.Context, sourceID string, withHistory bool) (*RightsResponse, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	rec, err := s.store.Rights(ctx, sourceID)
	if errors.Is(err, services.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	resp := &RightsResponse{Record: FromRights(rec)}
	if withHistory {
		history, err := s.store.History(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		resp.History = FromHistory(history)
	}
	return resp, nil
}

// ListRights returns records in the given states, or all of them.
func (s *CatalogService) ListRights(ctx context.Context, states ...rights.State) ([]RightsRecord, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	recs, err := s.store.ListRights(ctx, states...)
	if err != nil {
		return nil, err
	}
	out := make([]RightsRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromRights(rec))
	}
	return out, nil
}

// Entries lists catalog entries.
func (s *CatalogService) Entries(ctx context.Context, liveOnly bool) ([]CatalogEntry, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	entries, err := s.store.ListEntries(ctx, liveOnly)
	if err != nil {
		return nil, err
	}
	out := make([]CatalogEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, FromEntry(e))
	}
	return out, nil
}

// Entry fetches one catalog entry, or nil when sourceID was never published.
func (s *CatalogService) Entry(ctx context.Context, sourceID string) (*CatalogEntry, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	entry, err := s.store.Entry(ctx, sourceID)
	if errors.Is(err, services.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dto := FromEntry(entry)
	return &dto, nil
}
