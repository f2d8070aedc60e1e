package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"loopdeck/internal/catalog/blob"
	"loopdeck/internal/keylock"
	"loopdeck/internal/logging"
	"loopdeck/internal/notifications"
	"loopdeck/internal/queue"
	"loopdeck/internal/rights"
	"loopdeck/internal/services"
	"loopdeck/internal/staging"
)

// Catalog coordinates rights changes, publishing and retraction. Every
// method that mutates state for a source id holds its key lock.
type Catalog struct {
	store    *Store
	blobs    blob.Store
	locks    keylock.Locker
	notifier notifications.Service
	logger   *slog.Logger
}

// New wires a catalog. A nil notifier disables notifications.
func New(store *Store, blobs blob.Store, locks keylock.Locker, notifier notifications.Service, logger *slog.Logger) *Catalog {
	if notifier == nil {
		notifier = &notifications.Recorder{}
	}
	return &Catalog{
		store:    store,
		blobs:    blobs,
		locks:    locks,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "catalog"),
	}
}

// Store exposes the underlying database for read-only views.
func (c *Catalog) Store() *Store { return c.store }

// Blobs exposes the object store.
func (c *Catalog) Blobs() blob.Store { return c.blobs }

// RegisterTrack creates the pending record for a newly ingested Track.
func (c *Catalog) RegisterTrack(ctx context.Context, rec rights.Record) (bool, error) {
	var created bool
	err := keylock.With(ctx, c.locks, rec.SourceID, func() error {
		var err error
		created, err = c.store.CreateRights(ctx, rec)
		return err
	})
	return created, err
}

// SetOption adjusts a license state change.
type SetOption func(*setOptions)

type setOptions struct {
	reason string
}

// WithReason records why a record was restricted or rejected.
func WithReason(reason string) SetOption {
	return func(o *setOptions) { o.reason = strings.TrimSpace(reason) }
}

// SetLicenseState is the manual clearance action and the only writer of
// license state. The change is a compare-and-set on the record version and
// appends a history row attributed to services.ActorFromContext. Setting
// the current state again is a no-op. A published rights document is
// rewritten to match; retraction of downgraded entries is left to
// Reconcile.
func (c *Catalog) SetLicenseState(ctx context.Context, sourceID string, state rights.State, evidenceURI string, opts ...SetOption) (rights.Record, error) {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	evidenceURI = strings.TrimSpace(evidenceURI)
	logger := logging.WithContext(services.WithSourceID(ctx, sourceID), c.logger)

	var updated rights.Record
	var from rights.State
	var changed bool
	err := keylock.With(ctx, c.locks, sourceID, func() error {
		return c.store.withTx(ctx, func(tx *sqlx.Tx) error {
			row, err := getRights(ctx, tx, sourceID)
			if err != nil {
				return err
			}
			current := row.record()
			if current.State == state {
				updated = current
				return nil
			}
			if err := rights.CheckTransition(current.State, state, evidenceURI); err != nil {
				return services.Wrap(services.ErrValidation, "rights", "set license state", sourceID, err)
			}
			change := stateChange{
				sourceID:    sourceID,
				expected:    row.Version,
				from:        current.State,
				to:          state,
				evidenceURI: evidenceURI,
				reason:      o.reason,
				actor:       services.ActorFromContext(ctx),
				historyID:   uuid.NewString(),
			}
			if err := c.store.applyStateChange(ctx, tx, change); err != nil {
				return err
			}
			fresh, err := getRights(ctx, tx, sourceID)
			if err != nil {
				return err
			}
			updated = fresh.record()
			from = current.State
			changed = true
			return nil
		})
	})
	if err != nil {
		return rights.Record{}, err
	}
	if !changed {
		return updated, nil
	}

	logger.Info("license state changed",
		logging.String("from", string(from)),
		logging.String("license_state", string(state)),
		logging.String("actor", services.ActorFromContext(ctx)),
		logging.String(logging.FieldEventType, "rights_changed"),
	)
	if _, err := c.store.Entry(ctx, sourceID); err == nil {
		if err := c.putRightsDocument(ctx, updated); err != nil {
			logger.Warn("rights document not rewritten",
				logging.Error(err),
				logging.String(logging.FieldEventType, "rights_document_stale"),
				logging.String(logging.FieldErrorHint, "run loopdeck catalog reconcile"),
			)
		}
	}
	return updated, nil
}

func (c *Catalog) putRightsDocument(ctx context.Context, rec rights.Record) error {
	data, err := json.MarshalIndent(rec.Document(), "", "  ")
	if err != nil {
		return err
	}
	return c.blobs.Put(ctx, staging.RightsMetaKey(rec.SourceID), bytes.NewReader(data), int64(len(data)), "application/json")
}

// Publish uploads a Track's artifacts and writes its catalog entry. Rights
// are checked before any upload and re-read inside the entry transaction,
// which does no blob I/O. Anything other than cleared aborts with services.ErrComplianceViolation,
// removes uploaded audio and raises an alert.
func (c *Catalog) Publish(ctx context.Context, item *queue.Item) (Entry, error) {
	var entry Entry
	err := keylock.With(ctx, c.locks, item.SourceID, func() error {
		var err error
		entry, err = c.publishLocked(ctx, item)
		return err
	})
	if errors.Is(err, services.ErrComplianceViolation) {
		c.reportViolation(ctx, item, err)
	}
	return entry, err
}

func (c *Catalog) publishLocked(ctx context.Context, item *queue.Item) (Entry, error) {
	rec, err := c.store.Rights(ctx, item.SourceID)
	if err != nil {
		return Entry{}, err
	}
	if !rec.State.Publishable() {
		return Entry{}, complianceError(rec.State)
	}

	objects, err := publishObjects(item)
	if err != nil {
		return Entry{}, err
	}
	uploaded := make([]string, 0, len(objects)+1)
	for _, obj := range objects {
		if err := blob.PutFile(ctx, c.blobs, obj.key, obj.path); err != nil {
			c.deleteObjects(ctx, uploaded)
			return Entry{}, services.Wrap(services.ErrTransient, "publishing", "upload "+obj.key, "", err)
		}
		uploaded = append(uploaded, obj.key)
	}

	// The rights document goes up before the transaction, rendered from the
	// record just read. The transaction only checks that record still holds.
	doc := rec.Document()
	if err := c.putRightsDocument(ctx, rec); err != nil {
		c.deleteObjects(ctx, uploaded)
		return Entry{}, services.Wrap(services.ErrTransient, "publishing", "upload rights document", "", err)
	}

	entry := Entry{
		SourceID:    item.SourceID,
		Title:       item.Title,
		Segment:     item.Artifacts.Segment,
		Separation:  item.Artifacts.Separation,
		Alignment:   item.Artifacts.Alignment,
		Objects:     append(uploaded, staging.RightsMetaKey(item.SourceID)),
		PublishedAt: c.store.now(),
	}
	err = c.store.withTx(ctx, func(tx *sqlx.Tx) error {
		row, err := getRights(ctx, tx, item.SourceID)
		if err != nil {
			return err
		}
		current := row.record()
		if !current.State.Publishable() {
			return complianceError(current.State)
		}
		if current.Document() != doc {
			return services.Wrap(services.ErrTransient, "publishing", "verify rights",
				"rights record changed during publish", nil)
		}
		entry.Rights = doc
		return c.store.upsertEntry(ctx, tx, entry)
	})
	if err != nil {
		c.deleteObjects(ctx, audioOnly(uploaded, item.SourceID))
		c.restoreRightsDocument(ctx, item.SourceID, doc)
		return Entry{}, err
	}

	c.logger.InfoContext(ctx, "track published",
		logging.String(logging.FieldSourceID, item.SourceID),
		logging.Int("objects", len(entry.Objects)),
		logging.String("location", c.blobs.Location()),
		logging.String(logging.FieldEventType, "track_published"),
	)
	_ = c.notifier.Publish(ctx, notifications.EventTrackPublished, notifications.Payload{
		"sourceID": item.SourceID,
		"title":    item.Title,
	})
	return entry, nil
}

// restoreRightsDocument rewrites the rights document after a failed publish
// when the stored record no longer matches the uploaded one.
func (c *Catalog) restoreRightsDocument(ctx context.Context, sourceID string, uploaded rights.Document) {
	rec, err := c.store.Rights(ctx, sourceID)
	if err != nil || rec.Document() == uploaded {
		return
	}
	if err := c.putRightsDocument(ctx, rec); err != nil {
		c.logger.WarnContext(ctx, "rights document not rewritten",
			logging.String(logging.FieldSourceID, sourceID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "rights_document_stale"),
			logging.String(logging.FieldErrorHint, "run loopdeck catalog reconcile"),
		)
	}
}

func complianceError(state rights.State) error {
	return services.Wrap(services.ErrComplianceViolation, "publishing", "verify rights",
		fmt.Sprintf("license state is %s, publish requires %s", state, rights.StateCleared), nil)
}

func (c *Catalog) reportViolation(ctx context.Context, item *queue.Item, cause error) {
	state := "unknown"
	if rec, err := c.store.Rights(ctx, item.SourceID); err == nil {
		state = string(rec.State)
	}
	logging.WithContext(services.WithSourceID(ctx, item.SourceID), c.logger).Error("publish blocked by rights",
		logging.Alert("compliance_violation"),
		logging.EventType("compliance_violation"),
		logging.String("license_state", state),
		logging.String(logging.FieldImpact, "track held for operator review"),
		logging.String(logging.FieldErrorHint, "verify rights with loopdeck rights show "+item.SourceID),
		logging.Error(cause),
	)
	_ = c.notifier.Publish(ctx, notifications.EventComplianceViolation, notifications.Payload{
		"sourceID":     item.SourceID,
		"title":        item.Title,
		"licenseState": state,
	})
}

// Unpublish retracts a live entry: audio objects are deleted, metadata
// documents stay, and the row is kept with its retraction time. It reports
// false when there was no live entry.
func (c *Catalog) Unpublish(ctx context.Context, sourceID, reason string) (bool, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = services.ReasonUnpublished
	}
	var retracted bool
	err := keylock.With(ctx, c.locks, sourceID, func() error {
		entry, err := c.store.Entry(ctx, sourceID)
		if errors.Is(err, services.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !entry.Live() {
			return nil
		}
		for _, key := range staging.AudioKeys(sourceID) {
			if err := c.blobs.Delete(ctx, key); err != nil {
				return services.Wrap(services.ErrTransient, "catalog", "delete "+key, "", err)
			}
		}
		if rec, err := c.store.Rights(ctx, sourceID); err == nil {
			if err := c.putRightsDocument(ctx, rec); err != nil {
				return services.Wrap(services.ErrTransient, "catalog", "rewrite rights document", "", err)
			}
		}
		retracted, err = c.store.retractEntry(ctx, sourceID, reason)
		return err
	})
	if err != nil || !retracted {
		return false, err
	}
	logging.WithContext(services.WithSourceID(ctx, sourceID), c.logger).Warn("catalog entry retracted",
		logging.String("reason", reason),
		logging.String("actor", services.ActorFromContext(ctx)),
		logging.EventType("track_retracted"),
		logging.String(logging.FieldImpact, "audio removed from the catalog; metadata kept for audit"),
	)
	_ = c.notifier.Publish(ctx, notifications.EventTrackRetracted, notifications.Payload{
		"sourceID": sourceID,
		"reason":   reason,
	})
	return true, nil
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Checked   int
	Retracted []string
	Failed    map[string]error
}

// Reconcile retracts every live entry whose rights are no longer cleared.
// One failing entry does not stop the pass.
func (c *Catalog) Reconcile(ctx context.Context) (ReconcileReport, error) {
	violations, err := c.store.Violations(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}
	report := ReconcileReport{Checked: len(violations)}
	for _, entry := range violations {
		rec, err := c.store.Rights(ctx, entry.SourceID)
		if err != nil {
			report.fail(entry.SourceID, err)
			continue
		}
		reason := fmt.Sprintf("license %s", rec.State)
		if rec.RejectionReason != "" {
			reason += ": " + rec.RejectionReason
		}
		ok, err := c.Unpublish(ctx, entry.SourceID, reason)
		if err != nil {
			report.fail(entry.SourceID, err)
			continue
		}
		if ok {
			report.Retracted = append(report.Retracted, entry.SourceID)
		}
	}
	if len(report.Retracted) > 0 || len(report.Failed) > 0 {
		c.logger.InfoContext(ctx, "reconcile pass complete",
			logging.Int("checked", report.Checked),
			logging.Int("retracted", len(report.Retracted)),
			logging.Int("failed", len(report.Failed)),
			logging.EventType("reconcile_completed"),
		)
	}
	return report, nil
}

func (r *ReconcileReport) fail(sourceID string, err error) {
	if r.Failed == nil {
		r.Failed = make(map[string]error)
	}
	r.Failed[sourceID] = err
}

func (c *Catalog) deleteObjects(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := c.blobs.Delete(ctx, key); err != nil {
			c.logger.WarnContext(ctx, "cleanup of uploaded object failed",
				logging.String("key", key),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the object by hand or run loopdeck catalog reconcile"),
			)
		}
	}
}

type publishObject struct {
	key  string
	path string
}

// publishObjects lists the staged files a Track uploads, audio first.
func publishObjects(item *queue.Item) ([]publishObject, error) {
	a := item.Artifacts
	id := item.SourceID
	audio := []publishObject{
		{staging.RawKey(id), a.RawAudio},
		{staging.SegmentKey(id), a.SegmentAudio},
		{staging.VocalsKey(id), a.VocalStem},
		{staging.BedKey(id), a.BedStem},
	}
	var missing []string
	for _, obj := range audio {
		if obj.path == "" {
			missing = append(missing, obj.key)
		}
	}
	if len(missing) > 0 {
		return nil, services.Wrap(services.ErrValidation, "publishing", "collect artifacts",
			"missing "+strings.Join(missing, ", "), nil)
	}
	objects := audio
	for _, key := range []string{staging.SegmentMetaKey(id), staging.QAMetaKey(id), staging.AlignmentMetaKey(id)} {
		if path, ok := a.Metadata[key]; ok && path != "" {
			objects = append(objects, publishObject{key, path})
		}
	}
	return objects, nil
}

func audioOnly(keys []string, sourceID string) []string {
	audio := make(map[string]bool)
	for _, key := range staging.AudioKeys(sourceID) {
		audio[key] = true
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if audio[key] {
			out = append(out, key)
		}
	}
	return out
}
