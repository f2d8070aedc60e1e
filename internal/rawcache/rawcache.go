package rawcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"loopdeck/internal/config"
	"loopdeck/internal/logging"
	"loopdeck/internal/services"
)

const (
	// freeSpaceFloor is the minimum free-space ratio we allow before pruning.
	freeSpaceFloor = 0.20

	audioFileName    = "audio.wav"
	metadataFileName = "rawcache.json"
	metadataVersion  = 1
)

// Downloader fetches the audio for a source id into destDir and returns the
// written file.
type Downloader interface {
	DownloadAudio(ctx context.Context, sourceID, destDir string) (string, error)
}

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Entry describes a cached download.
type Entry struct {
	SourceID  string    `json:"source_id"`
	Path      string    `json:"-"`
	Checksum  string    `json:"checksum"`
	SizeBytes int64     `json:"size_bytes"`
	FetchedAt time.Time `json:"fetched_at"`
	// Reused is set when Fetch served the entry without downloading.
	Reused bool `json:"-"`
}

type entryMetadata struct {
	Version int `json:"version"`
	Entry
}

// Stats describes current cache usage.
type Stats struct {
	Entries    int     `json:"entries"`
	TotalBytes int64   `json:"total_bytes"`
	MaxBytes   int64   `json:"max_bytes"`
	FreeBytes  uint64  `json:"free_bytes"`
	FreeRatio  float64 `json:"free_ratio"`
}

// Manager fetches, verifies and prunes cached audio.
type Manager struct {
	root       string
	maxBytes   int64
	downloader Downloader
	logger     *slog.Logger
	statfs     statfsFunc
	now        func() time.Time
}

// NewManager builds a cache rooted at cfg.RawCacheDir().
func NewManager(cfg *config.Config, downloader Downloader, logger *slog.Logger) *Manager {
	return &Manager{
		root:       cfg.RawCacheDir(),
		maxBytes:   int64(cfg.Paths.RawCacheMaxGiB) * 1024 * 1024 * 1024,
		downloader: downloader,
		logger:     logging.NewComponentLogger(logger, "rawcache"),
		statfs:     realStatfs,
		now:        time.Now,
	}
}

// Root returns the cache directory.
func (m *Manager) Root() string {
	return m.root
}

// Fetch returns the cached audio for sourceID, downloading it when absent or
// when the stored bytes no longer match their checksum. A non-empty expected
// checksum that differs from the cached entry also forces a download.
func (m *Manager) Fetch(ctx context.Context, sourceID, expected string) (Entry, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" || strings.ContainsAny(sourceID, `/\`) || strings.HasPrefix(sourceID, ".") {
		return Entry{}, services.Wrap(services.ErrValidation, "rawcache", "fetch", fmt.Sprintf("invalid source id %q", sourceID), nil)
	}
	if entry, ok := m.lookup(sourceID); ok {
		if expected == "" || strings.EqualFold(expected, entry.Checksum) {
			now := m.now()
			_ = os.Chtimes(m.entryDir(sourceID), now, now)
			entry.Reused = true
			m.logger.DebugContext(ctx, "raw audio served from cache",
				logging.String(logging.FieldSourceID, sourceID),
				logging.String("checksum", entry.Checksum),
			)
			return entry, nil
		}
		m.logger.InfoContext(ctx, "cached raw audio checksum changed; refetching",
			logging.String(logging.FieldSourceID, sourceID),
			logging.String("expected", expected),
			logging.String("cached", entry.Checksum),
		)
	}
	return m.download(ctx, sourceID)
}

func (m *Manager) download(ctx context.Context, sourceID string) (Entry, error) {
	if m.downloader == nil {
		return Entry{}, services.Wrap(services.ErrConfiguration, "rawcache", "fetch", "no downloader configured", nil)
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return Entry{}, fmt.Errorf("rawcache: ensure root: %w", err)
	}
	tmp, err := os.MkdirTemp(m.root, ".fetch-"+sourceID+"-")
	if err != nil {
		return Entry{}, fmt.Errorf("rawcache: temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	downloaded, err := m.downloader.DownloadAudio(ctx, sourceID, tmp)
	if err != nil {
		return Entry{}, err
	}
	checksum, size, err := hashFile(downloaded)
	if err != nil {
		return Entry{}, services.Wrap(services.ErrValidation, "rawcache", "hash download", downloaded, err)
	}
	if size == 0 {
		return Entry{}, services.Wrap(services.ErrFetch, "rawcache", "fetch", "empty download for "+sourceID, nil)
	}

	entry := Entry{SourceID: sourceID, Checksum: checksum, SizeBytes: size, FetchedAt: m.now().UTC()}
	staged := filepath.Join(tmp, "entry")
	if err := os.MkdirAll(staged, 0o755); err != nil {
		return Entry{}, fmt.Errorf("rawcache: stage entry: %w", err)
	}
	if err := os.Rename(downloaded, filepath.Join(staged, audioFileName)); err != nil {
		return Entry{}, fmt.Errorf("rawcache: stage audio: %w", err)
	}
	if err := writeMetadata(filepath.Join(staged, metadataFileName), entry); err != nil {
		return Entry{}, err
	}
	dest := m.entryDir(sourceID)
	if err := os.RemoveAll(dest); err != nil {
		return Entry{}, fmt.Errorf("rawcache: replace entry: %w", err)
	}
	if err := os.Rename(staged, dest); err != nil {
		return Entry{}, fmt.Errorf("rawcache: commit entry: %w", err)
	}
	entry.Path = filepath.Join(dest, audioFileName)

	m.logger.InfoContext(ctx, "raw audio fetched",
		logging.String(logging.FieldSourceID, sourceID),
		logging.String("checksum", checksum),
		logging.Int64("size_bytes", size),
		logging.String(logging.FieldEventType, "raw_audio_fetched"),
	)
	if err := m.prune(ctx, dest); err != nil {
		m.logger.WarnContext(ctx, "raw cache prune failed; cache may exceed its budget",
			logging.Error(err),
			logging.String(logging.FieldEventType, "rawcache_prune_failed"),
			logging.String(logging.FieldErrorHint, "raise paths.raw_cache_max_gib or free disk space"),
		)
	}
	return entry, nil
}

// Verify reports whether the cached file for sourceID still hashes to checksum.
func (m *Manager) Verify(sourceID, checksum string) bool {
	entry, ok := m.lookup(sourceID)
	return ok && strings.EqualFold(entry.Checksum, checksum)
}

// lookup loads and re-hashes an entry. Missing or corrupt entries report false.
func (m *Manager) lookup(sourceID string) (Entry, bool) {
	dir := m.entryDir(sourceID)
	payload, err := os.ReadFile(filepath.Join(dir, metadataFileName))
	if err != nil {
		return Entry{}, false
	}
	var meta entryMetadata
	if err := json.Unmarshal(payload, &meta); err != nil || meta.Version != metadataVersion {
		return Entry{}, false
	}
	path := filepath.Join(dir, audioFileName)
	checksum, size, err := hashFile(path)
	if err != nil || checksum != meta.Checksum || size != meta.SizeBytes {
		return Entry{}, false
	}
	meta.Entry.Path = path
	return meta.Entry, true
}

// Remove drops the entry for sourceID.
func (m *Manager) Remove(sourceID string) error {
	if strings.TrimSpace(sourceID) == "" {
		return nil
	}
	if err := os.RemoveAll(m.entryDir(sourceID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("rawcache: remove %s: %w", sourceID, err)
	}
	return nil
}

// Stats returns current cache usage and filesystem free-space info.
func (m *Manager) Stats() (Stats, error) {
	entries, total, err := m.scan()
	if err != nil {
		return Stats{}, err
	}
	totalFS, freeFS, err := m.statfs(m.root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Stats{}, fmt.Errorf("rawcache: statfs: %w", err)
	}
	ratio := 1.0
	if totalFS > 0 {
		ratio = float64(freeFS) / float64(totalFS)
	}
	return Stats{Entries: len(entries), TotalBytes: total, MaxBytes: m.maxBytes, FreeBytes: freeFS, FreeRatio: ratio}, nil
}

func (m *Manager) entryDir(sourceID string) string {
	return filepath.Join(m.root, sourceID)
}

// prune removes oldest entries until size and free-space limits hold.
// keepPath is never removed.
func (m *Manager) prune(ctx context.Context, keepPath string) error {
	if m.maxBytes <= 0 {
		return nil
	}
	entries, total, err := m.scan()
	if err != nil {
		return err
	}
	for len(entries) > 0 {
		freeOK, err := m.freeSpaceOK()
		if err != nil {
			return err
		}
		if total <= m.maxBytes && freeOK {
			return nil
		}
		oldest := entries[0]
		entries = entries[1:]
		if oldest.path == keepPath {
			continue
		}
		if err := os.RemoveAll(oldest.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("rawcache: remove %q: %w", oldest.path, err)
		}
		m.logger.InfoContext(ctx, "pruned raw cache entry",
			logging.String("cache_dir", oldest.path),
			logging.Int64("entry_size_bytes", oldest.size),
		)
		total -= oldest.size
	}
	if total > m.maxBytes {
		return fmt.Errorf("rawcache: cache over limits and active entry %q cannot be pruned", keepPath)
	}
	return nil
}

type cacheEntry struct {
	path    string
	size    int64
	modTime time.Time
}

func (m *Manager) scan() ([]cacheEntry, int64, error) {
	dirEntries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("rawcache: list root: %w", err)
	}
	entries := make([]cacheEntry, 0, len(dirEntries))
	var total int64
	for _, d := range dirEntries {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		path := filepath.Join(m.root, d.Name())
		info, err := d.Info()
		if err != nil {
			continue
		}
		var size int64
		if st, err := os.Stat(filepath.Join(path, audioFileName)); err == nil {
			size = st.Size()
		}
		total += size
		entries = append(entries, cacheEntry{path: path, size: size, modTime: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})
	return entries, total, nil
}

func (m *Manager) freeSpaceOK() (bool, error) {
	total, free, err := m.statfs(m.root)
	if err != nil {
		return false, fmt.Errorf("rawcache: statfs: %w", err)
	}
	if total == 0 {
		return true, nil
	}
	return float64(free)/float64(total) >= freeSpaceFloor, nil
}

func writeMetadata(path string, entry Entry) error {
	payload, err := json.MarshalIndent(entryMetadata{Version: metadataVersion, Entry: entry}, "", "  ")
	if err != nil {
		return fmt.Errorf("rawcache: encode metadata: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("rawcache: write metadata: %w", err)
	}
	return nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	return stat.Blocks * uint64(stat.Bsize), stat.Bavail * uint64(stat.Bsize), nil
}
