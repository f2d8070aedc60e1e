package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sys/unix"

	"loopdeck/internal/catalog/blob"
	"loopdeck/internal/config"
	"loopdeck/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies that the filesystem holding path has at least
// minFreeGiB available to unprivileged users.
func CheckDiskSpace(name, path string, minFreeGiB uint64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := st.Bavail * uint64(st.Bsize)
	freeGiB := float64(free) / (1 << 30)
	detail := fmt.Sprintf("%.1f GiB free", freeGiB)
	if free < minFreeGiB<<30 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %d GiB)", detail, minFreeGiB)}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckRedis verifies the redis lock backend answers PING.
func CheckRedis(ctx context.Context, cfg config.Lock) Result {
	const name = "Redis lock backend"
	if cfg.RedisAddr == "" {
		return Result{Name: name, Detail: "missing address"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()
	if err := client.Ping(checkCtx).Err(); err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	return Result{Name: name, Passed: true, Detail: cfg.RedisAddr}
}

// CheckStorage verifies the artifact store can be listed.
func CheckStorage(ctx context.Context, store blob.Store) Result {
	const name = "Artifact storage"

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := store.List(checkCtx, "metadata/"); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s)", store.Location(), summarizeNetError(err))}
	}
	return Result{Name: name, Passed: true, Detail: store.Location()}
}

// CheckSystemDeps evaluates the external tools required by the configured
// backends. Both the daemon and the CLI status command use this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.Check(
		deps.Requirement{
			Name:        "yt-dlp",
			Command:     cfg.Tools.YtDlpBinary,
			Description: "Required for audio downloads and captions",
		},
		deps.Requirement{
			Name:        "FFmpeg",
			Command:     cfg.Tools.FFmpegBinary,
			Description: "Required for decoding downloaded audio",
		},
		deps.Requirement{
			Name:        "Demucs",
			Command:     cfg.Tools.DemucsBinary,
			Description: "Source separation model runner",
			Optional:    cfg.Separation.Backend != config.SeparationDemucs,
		},
		deps.Requirement{
			Name:        "WhisperX",
			Command:     cfg.Tools.WhisperXBinary,
			Description: "Forced lyric alignment",
			Optional:    cfg.Alignment.Backend != config.AlignmentWhisperX,
		},
	)
}

// summarizeNetError produces a human-readable summary for connectivity failures.
func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (unreachable)"
	}
	return err.Error()
}
