package api

import (
	"context"
	"fmt"
	"strings"

	"loopdeck/internal/queue"
)

// QueueReader is the slice of the queue store the read endpoints need. Both
// the daemon and the CLI's direct-database fallback serve reads through it.
type QueueReader interface {
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Item, error)
	ListReview(ctx context.Context) ([]*queue.Item, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	GetBySourceID(ctx context.Context, sourceID string) (*queue.Item, error)
}

// StatusFilterError names a status filter value that is not a queue status.
type StatusFilterError struct{ Value string }

func (e *StatusFilterError) Error() string {
	return fmt.Sprintf("unknown status %q (known: %s)", e.Value, knownStatuses())
}

func knownStatuses() string {
	names := make([]string, 0, len(queue.AllStatuses()))
	for _, s := range queue.AllStatuses() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// ParseStatusFilter turns repeated and comma separated status values into
// queue statuses. Blank entries are ignored.
func ParseStatusFilter(values []string) ([]queue.Status, error) {
	var out []queue.Status
	for _, value := range values {
		for part := range strings.SplitSeq(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				return nil, &StatusFilterError{Value: part}
			}
			out = append(out, status)
		}
	}
	return out, nil
}

// QueueService answers queue reads with API DTOs.
type QueueService struct {
	store QueueReader
}

// NewQueueService wraps store. A nil store yields a nil service whose
// methods return empty results.
func NewQueueService(store QueueReader) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store}
}

// List returns Tracks whose status matches one of filters, in playlist order.
func (s *QueueService) List(ctx context.Context, filters []string) ([]Track, error) {
	if s == nil {
		return nil, nil
	}
	statuses, err := ParseStatusFilter(filters)
	if err != nil {
		return nil, err
	}
	items, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromQueueItems(items), nil
}

// Review returns Tracks held for operator review, oldest hold first.
func (s *QueueService) Review(ctx context.Context) ([]Track, error) {
	if s == nil {
		return nil, nil
	}
	items, err := s.store.ListReview(ctx)
	if err != nil {
		return nil, err
	}
	return FromQueueItems(items), nil
}

// Stats returns per-status counts with every known status present.
func (s *QueueService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// Describe returns one Track, or nil when sourceID was never ingested.
func (s *QueueService) Describe(ctx context.Context, sourceID string) (*Track, error) {
	if s == nil {
		return nil, nil
	}
	item, err := s.store.GetBySourceID(ctx, strings.TrimSpace(sourceID))
	if err != nil || item == nil {
		return nil, err
	}
	track := FromQueueItem(item)
	return &track, nil
}
