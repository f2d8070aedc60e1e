package separation

import (
	"context"
	"fmt"
	"time"

	"loopdeck/internal/config"
	"loopdeck/internal/services"
	"loopdeck/internal/services/demucs"
)

// Input is one separation job.
type Input struct {
	SourceID  string
	AudioPath string
	WorkDir   string
}

// Stems are the files a backend produced.
type Stems struct {
	VocalsPath string
	BedPath    string
}

// Backend splits a mix into a vocal stem and a bed.
type Backend interface {
	Name() string
	Separate(ctx context.Context, in Input) (Stems, error)
}

// NewBackend returns the backend named in cfg.
func NewBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Separation.Backend {
	case config.SeparationDemucs:
		svc := demucs.New(cfg.Tools.DemucsBinary, cfg.Separation.Model, cfg.Separation.Device)
		return NewDemucsBackend(svc, time.Duration(cfg.Tools.SeparationTimeout)*time.Second), nil
	case config.SeparationCenter:
		return NewCenterBackend(), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, stageName, "select backend", fmt.Sprintf("unknown separation backend %q", cfg.Separation.Backend), nil)
	}
}

// DemucsBackend runs the demucs CLI.
type DemucsBackend struct {
	svc     *demucs.Service
	timeout time.Duration
}

// NewDemucsBackend wraps svc. A zero timeout leaves the run unbounded.
func NewDemucsBackend(svc *demucs.Service, timeout time.Duration) *DemucsBackend {
	return &DemucsBackend{svc: svc, timeout: timeout}
}

// Name identifies the backend and model in QA reports.
func (b *DemucsBackend) Name() string {
	return config.SeparationDemucs + ":" + b.svc.Model()
}

// Separate runs demucs with the configured timeout.
func (b *DemucsBackend) Separate(ctx context.Context, in Input) (Stems, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	stems, err := b.svc.Separate(ctx, in.AudioPath, in.WorkDir)
	if err != nil {
		return Stems{}, err
	}
	return Stems{VocalsPath: stems.Vocals, BedPath: stems.Bed}, nil
}
