package queueaccess

import (
	"context"
	"fmt"

	"loopdeck/internal/api"
	"loopdeck/internal/daemonctl"
	"loopdeck/internal/queue"
)

// Access provides queue operations regardless of daemon or direct store backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.Track, error)
	Review(ctx context.Context) ([]api.Track, error)
	Describe(ctx context.Context, sourceID string) (*api.Track, error)
	Retry(ctx context.Context, sourceIDs []string) (int64, error)
	Reingest(ctx context.Context, sourceID string) (bool, error)
	Reject(ctx context.Context, sourceID, reason, detail string) error
}

// NewClientAccess returns an Access backed by the daemon API.
func NewClientAccess(client *daemonctl.Client) Access {
	return &clientAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access.
func NewStoreAccess(store *queue.Store) Access {
	return &storeAccess{store: store, service: api.NewQueueService(store)}
}

type clientAccess struct {
	client *daemonctl.Client
}

func (a *clientAccess) Stats(ctx context.Context) (map[string]int, error) {
	resp, err := a.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Workflow.QueueStats, nil
}

func (a *clientAccess) List(ctx context.Context, statuses []string) ([]api.Track, error) {
	return a.client.Tracks(ctx, statuses)
}

func (a *clientAccess) Review(ctx context.Context) ([]api.Track, error) {
	return a.client.Review(ctx)
}

func (a *clientAccess) Describe(ctx context.Context, sourceID string) (*api.Track, error) {
	return a.client.Track(ctx, sourceID)
}

func (a *clientAccess) Retry(ctx context.Context, sourceIDs []string) (int64, error) {
	return a.client.Retry(ctx, sourceIDs)
}

func (a *clientAccess) Reingest(ctx context.Context, sourceID string) (bool, error) {
	err := a.client.Reingest(ctx, sourceID)
	if daemonctl.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (a *clientAccess) Reject(ctx context.Context, sourceID, reason, detail string) error {
	return a.client.Reject(ctx, sourceID, reason, detail)
}

type storeAccess struct {
	store   *queue.Store
	service *api.QueueService
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]api.Track, error) {
	return a.service.List(ctx, statuses)
}

func (a *storeAccess) Review(ctx context.Context) ([]api.Track, error) {
	return a.service.Review(ctx)
}

func (a *storeAccess) Describe(ctx context.Context, sourceID string) (*api.Track, error) {
	return a.service.Describe(ctx, sourceID)
}

func (a *storeAccess) Retry(ctx context.Context, sourceIDs []string) (int64, error) {
	return a.store.RetryFailed(ctx, sourceIDs...)
}

func (a *storeAccess) Reingest(ctx context.Context, sourceID string) (bool, error) {
	return a.store.Reingest(ctx, sourceID)
}

func (a *storeAccess) Reject(ctx context.Context, sourceID, reason, detail string) error {
	item, err := a.store.GetBySourceID(ctx, sourceID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("track %s not found", sourceID)
	}
	_, err = a.store.Reject(ctx, sourceID, reason, detail)
	return err
}
