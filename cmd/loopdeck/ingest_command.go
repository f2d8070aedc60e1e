package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"loopdeck/internal/api"
	"loopdeck/internal/catalog"
	"loopdeck/internal/catalog/blob"
	"loopdeck/internal/config"
	"loopdeck/internal/daemonctl"
	"loopdeck/internal/keylock"
	"loopdeck/internal/logging"
	"loopdeck/internal/notifications"
	"loopdeck/internal/playlist"
	"loopdeck/internal/queue"
	"loopdeck/internal/workflow"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var playlistID string
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Pull playlist candidates into the queue",
		Long: "Pull playlist candidates into the queue.\n\n" +
			"With a running daemon the daemon ingests and its pools pick the new Tracks up. " +
			"Without one, candidates are recorded directly in the queue database and are " +
			"processed on the next daemon start.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be non-negative")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			req := api.IngestRequest{PlaylistID: playlistID, Limit: limit}
			out := cmd.OutOrStdout()

			var resp api.IngestResponse
			client, err := ctx.client()
			if err == nil && client.Health(cmd.Context()) == nil {
				resp, err = ingestViaDaemon(cmd.Context(), client, req, progressWriter(cmd, asJSON))
			} else {
				resp, err = ingestLocally(cmd.Context(), cfg, req, progressWriter(cmd, asJSON))
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintf(out, "Playlist %s: %d seen, %d new, %d already queued\n",
				resp.PlaylistID, resp.Seen, resp.Created, resp.Existing)
			return nil
		},
	}
	cmd.Flags().StringVar(&playlistID, "playlist", "", "Playlist ID (defaults to playlist.id)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many candidates (defaults to playlist.limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// progressWriter is where progress bars draw; JSON output and
// non-terminal stderr get no bar.
func progressWriter(cmd *cobra.Command, asJSON bool) io.Writer {
	if asJSON || !isTTY(cmd.ErrOrStderr()) {
		return io.Discard
	}
	return cmd.ErrOrStderr()
}

func ingestViaDaemon(ctx context.Context, client *daemonctl.Client, req api.IngestRequest, w io.Writer) (api.IngestResponse, error) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetDescription("Ingesting via daemon..."),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()
	resp, err := client.Ingest(ctx, req)
	close(done)
	_ = bar.Finish()
	return resp, err
}

func ingestLocally(ctx context.Context, cfg *config.Config, req api.IngestRequest, w io.Writer) (api.IngestResponse, error) {
	logger, err := logging.NewCommandLogger(cfg, "ingest")
	if err != nil {
		return api.IngestResponse{}, err
	}

	mgr, closeAll, err := openLocalManager(ctx, cfg, logger)
	if err != nil {
		return api.IngestResponse{}, err
	}
	defer closeAll()

	total := req.Limit
	if total <= 0 {
		total = cfg.Playlist.Limit
	}
	if total <= 0 {
		total = -1
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionSetDescription("Ingesting playlist..."),
		progressbar.OptionClearOnFinish(),
	)
	report, err := mgr.Ingest(ctx, workflow.IngestOptions{
		PlaylistID: req.PlaylistID,
		Limit:      req.Limit,
		Progress: func(candidate playlist.Candidate, created bool) {
			bar.Describe(truncate(candidate.Title, 32))
			_ = bar.Add(1)
		},
	})
	_ = bar.Finish()
	if err != nil {
		return api.IngestResponse{}, err
	}
	return api.IngestResponse{
		PlaylistID: report.PlaylistID,
		Seen:       report.Seen,
		Created:    report.Created,
		Existing:   report.Existing,
	}, nil
}

// openLocalManager wires a workflow manager without stage pools, enough to
// ingest while no daemon holds the stores.
func openLocalManager(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*workflow.Manager, func(), error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open queue store: %w", err)
	}
	closers = append(closers, store.Close)

	catStore, err := catalog.Open(cfg)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("open catalog store: %w", err)
	}
	closers = append(closers, catStore.Close)

	blobs, err := blob.New(ctx, cfg.Storage)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("open artifact storage: %w", err)
	}
	locks, err := keylock.New(cfg.Lock)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("open lock backend: %w", err)
	}
	closers = append(closers, locks.Close)

	source, err := playlist.NewSource(ctx, cfg)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("open playlist source: %w", err)
	}

	notifier := notifications.NewService(cfg)
	cat := catalog.New(catStore, blobs, locks, notifier, logger)
	mgr := workflow.NewManager(cfg, store, cat, logger,
		workflow.WithNotifier(notifier),
		workflow.WithFetcher(playlist.NewFetcher(source)),
	)
	return mgr, closeAll, nil
}
