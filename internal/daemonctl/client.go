package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os/user"
	"strings"
	"syscall"
	"time"

	"loopdeck/internal/api"
	"loopdeck/internal/config"
)

// tokenTTL bounds how long a CLI-minted token stays valid.
const tokenTTL = 5 * time.Minute

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// APIError is a non-2xx reply from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Status)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsUnavailable reports whether err means nothing is listening.
func IsUnavailable(err error) bool {
	if errors.Is(err, ErrDaemonNotRunning) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Client talks to the daemon's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the configured bind address. When a JWT
// secret is configured the client mints a short-lived token naming operator;
// an empty operator falls back to the current OS user.
func NewClient(cfg *config.Config, operator string) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	base, err := BaseURL(cfg.API.Bind)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 30 * time.Minute},
	}
	if strings.TrimSpace(cfg.API.JWTSecret) != "" {
		if strings.TrimSpace(operator) == "" {
			operator = currentUser()
		}
		token, err := api.IssueToken(cfg.API.JWTSecret, cfg.API.JWTIssuer, operator, tokenTTL)
		if err != nil {
			return nil, err
		}
		c.token = token
	}
	return c, nil
}

// BaseURL converts a listen address to a loopback URL a client can dial.
func BaseURL(bind string) (string, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return "", fmt.Errorf("%w: api.bind is empty", ErrDaemonNotRunning)
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "", fmt.Errorf("parse api.bind %q: %w", bind, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "operator"
}

// Health pings the unauthenticated health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var out api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Tracks lists queued Tracks, optionally filtered by status names.
func (c *Client) Tracks(ctx context.Context, statuses []string) ([]api.Track, error) {
	path := "/api/tracks"
	if len(statuses) > 0 {
		path += "?status=" + url.QueryEscape(strings.Join(statuses, ","))
	}
	var out api.TrackListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Track returns one Track or nil when it is not queued.
func (c *Client) Track(ctx context.Context, sourceID string) (*api.Track, error) {
	var out api.TrackResponse
	if err := c.do(ctx, http.MethodGet, "/api/tracks/"+url.PathEscape(sourceID), nil, &out); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out.Item, nil
}

// Submit runs one stage for a Track synchronously.
func (c *Client) Submit(ctx context.Context, sourceID, stage string) (api.StageResult, error) {
	var out api.StageResult
	path := "/api/tracks/" + url.PathEscape(sourceID) + "/submit/" + url.PathEscape(stage)
	err := c.do(ctx, http.MethodPost, path, nil, &out)
	return out, err
}

// Retry requeues failed Tracks. No IDs retries every failed Track.
func (c *Client) Retry(ctx context.Context, sourceIDs []string) (int64, error) {
	var out api.CountResponse
	err := c.do(ctx, http.MethodPost, "/api/tracks/retry", api.RetryRequest{SourceIDs: sourceIDs}, &out)
	return out.Count, err
}

// Reingest drops cached results and restarts a Track from the beginning.
func (c *Client) Reingest(ctx context.Context, sourceID string) error {
	return c.do(ctx, http.MethodPost, "/api/tracks/"+url.PathEscape(sourceID)+"/reingest", nil, nil)
}

// Reject moves a Track to rejected with reason.
func (c *Client) Reject(ctx context.Context, sourceID, reason, detail string) error {
	body := api.RejectRequest{Reason: reason, Detail: detail}
	return c.do(ctx, http.MethodPost, "/api/tracks/"+url.PathEscape(sourceID)+"/reject", body, nil)
}

// Review lists Tracks held for operator review.
func (c *Client) Review(ctx context.Context) ([]api.Track, error) {
	var out api.TrackListResponse
	if err := c.do(ctx, http.MethodGet, "/api/review", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ApproveReview releases a review hold.
func (c *Client) ApproveReview(ctx context.Context, sourceID string) error {
	return c.do(ctx, http.MethodPost, "/api/review/"+url.PathEscape(sourceID)+"/approve", nil, nil)
}

// RejectReview rejects a held Track with the reason its gate implies.
func (c *Client) RejectReview(ctx context.Context, sourceID string) error {
	return c.do(ctx, http.MethodPost, "/api/review/"+url.PathEscape(sourceID)+"/reject", nil, nil)
}

// Ingest pulls playlist candidates into the queue.
func (c *Client) Ingest(ctx context.Context, req api.IngestRequest) (api.IngestResponse, error) {
	var out api.IngestResponse
	err := c.do(ctx, http.MethodPost, "/api/ingest", req, &out)
	return out, err
}

// ListRights lists rights records, optionally filtered by state.
func (c *Client) ListRights(ctx context.Context, states []string) ([]api.RightsRecord, error) {
	query := url.Values{}
	for _, s := range states {
		query.Add("state", s)
	}
	path := "/api/rights"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out []api.RightsRecord
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Rights returns a rights record, with its history when requested, or nil
// when none exists.
func (c *Client) Rights(ctx context.Context, sourceID string, history bool) (*api.RightsResponse, error) {
	path := "/api/rights/" + url.PathEscape(sourceID)
	if history {
		path += "?history=1"
	}
	var out api.RightsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// SetRights changes a Track's license state.
func (c *Client) SetRights(ctx context.Context, sourceID string, req api.LicenseStateRequest) (api.RightsRecord, error) {
	var out api.RightsResponse
	err := c.do(ctx, http.MethodPost, "/api/rights/"+url.PathEscape(sourceID), req, &out)
	return out.Record, err
}

// Catalog lists catalog entries.
func (c *Client) Catalog(ctx context.Context, liveOnly bool) ([]api.CatalogEntry, error) {
	path := "/api/catalog"
	if liveOnly {
		path += "?live=1"
	}
	var out api.CatalogListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// CatalogEntry returns one entry or nil when the Track was never published.
func (c *Client) CatalogEntry(ctx context.Context, sourceID string) (*api.CatalogEntry, error) {
	var out api.CatalogEntry
	if err := c.do(ctx, http.MethodGet, "/api/catalog/"+url.PathEscape(sourceID), nil, &out); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// Unpublish retracts a live entry. It reports whether anything was retracted.
func (c *Client) Unpublish(ctx context.Context, sourceID, reason string) (bool, error) {
	var out api.ActionResponse
	err := c.do(ctx, http.MethodPost, "/api/catalog/"+url.PathEscape(sourceID)+"/unpublish", api.UnpublishRequest{Reason: reason}, &out)
	return out.Applied, err
}

// Reconcile runs a catalog reconcile pass.
func (c *Client) Reconcile(ctx context.Context) (api.ReconcileResponse, error) {
	var out api.ReconcileResponse
	err := c.do(ctx, http.MethodPost, "/api/catalog/reconcile", nil, &out)
	return out, err
}

// QueueHealth returns queue counts and database diagnostics.
func (c *Client) QueueHealth(ctx context.Context) (api.QueueHealth, error) {
	var out api.QueueHealth
	err := c.do(ctx, http.MethodGet, "/api/queue/health", nil, &out)
	return out, err
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (api.NotificationResponse, error) {
	var out api.NotificationResponse
	err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if IsUnavailable(err) {
			return fmt.Errorf("%w: %w", ErrDaemonNotRunning, err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload api.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
