package queueaccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loopdeck/internal/daemonctl"
	"loopdeck/internal/queue"
)

// Backend names what a Session talks to.
type Backend string

const (
	BackendDaemon   Backend = "daemon"
	BackendDatabase Backend = "database"
)

// probeTimeout bounds the health check that picks the backend.
const probeTimeout = 2 * time.Second

// Openers supplies the two ways to reach the queue.
type Openers struct {
	Daemon func(context.Context) (*daemonctl.Client, error)
	Store  func() (*queue.Store, error)
}

// Session is an Access plus whatever must be released with it.
type Session struct {
	Access  Access
	Backend Backend
	release func() error
}

// Direct reports whether the session reads the queue database itself.
func (s Session) Direct() bool {
	return s.Backend == BackendDatabase
}

// Close releases the session's store handle, if any.
func (s Session) Close() error {
	if s.release == nil {
		return nil
	}
	return s.release()
}

// Open returns a daemon-backed session when the daemon answers its health
// probe, and a database-backed one otherwise.
func Open(ctx context.Context, o Openers) (Session, error) {
	if client := probe(ctx, o.Daemon); client != nil {
		return Session{Access: NewClientAccess(client), Backend: BackendDaemon}, nil
	}
	if o.Store == nil {
		return Session{}, errors.New("open queue store: no store opener configured")
	}
	store, err := o.Store()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{
		Access:  NewStoreAccess(store),
		Backend: BackendDatabase,
		release: store.Close,
	}, nil
}

func probe(ctx context.Context, dial func(context.Context) (*daemonctl.Client, error)) *daemonctl.Client {
	if dial == nil {
		return nil
	}
	client, err := dial(ctx)
	if err != nil {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if client.Health(pingCtx) != nil {
		return nil
	}
	return client
}
