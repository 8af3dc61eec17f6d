package intercache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"

	"vdcrpt/internal/config"
	"vdcrpt/internal/fileutil"
	"vdcrpt/internal/logging"
	"vdcrpt/internal/textutil"
)

const (
	// freeSpaceFloor is the minimum free-space ratio we allow before pruning (e.g., 0.20 => 80% full).
	freeSpaceFloor = 0.20

	lockSuffix    = ".lock"
	partialMarker = ".partial."
	lockRetry     = 250 * time.Millisecond
)

var (
	// ErrWriteFailed marks failures on the cache side of a populate: creating
	// the directory, taking the lock, or publishing the finished file.
	ErrWriteFailed = errors.New("cache write failed")
	// ErrEmptyOutput reports a producer that returned success without writing data.
	ErrEmptyOutput = errors.New("producer wrote no data")
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Producer writes a complete entry to tmpPath. The path keeps the cache's
// container extension so tools that infer the format from it work unchanged.
type Producer func(ctx context.Context, tmpPath string) error

// Manager owns one cache directory.
type Manager struct {
	root      string
	container string
	maxBytes  int64
	logger    *slog.Logger
	statfs    statfsFunc
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxBytes sets the size budget. Zero disables size-based pruning.
func WithMaxBytes(n int64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxBytes = n
		}
	}
}

// WithContainer sets the file extension of entries (default "avi").
func WithContainer(ext string) Option {
	return func(m *Manager) {
		if ext = strings.TrimPrefix(strings.TrimSpace(ext), "."); ext != "" {
			m.container = ext
		}
	}
}

// WithLogger routes manager logs through logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.NewComponentLogger(logger, "intercache")
	}
}

// New builds a manager rooted at root.
func New(root string, opts ...Option) (*Manager, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("intercache: empty cache directory")
	}
	m := &Manager{
		root:      filepath.Clean(root),
		container: "avi",
		logger:    logging.NewComponentLogger(nil, "intercache"),
		statfs:    realStatfs,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NewFromConfig builds a manager from the cache settings in cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("intercache: nil config")
	}
	return New(cfg.Paths.CacheDir,
		WithMaxBytes(cfg.CacheMaxBytes()),
		WithContainer(cfg.Transcoder.Container),
		WithLogger(logger),
	)
}

// Root returns the cache directory.
func (m *Manager) Root() string { return m.root }

// Container returns the entry file extension.
func (m *Manager) Container() string { return m.container }

// Key combines an input fingerprint with the intermediate codec pair. Codec
// names are sanitized so the key is always a single safe path segment.
func Key(fingerprint, videoCodec, audioCodec string) string {
	return strings.ToLower(strings.TrimSpace(fingerprint)) + "_" +
		textutil.SanitizeToken(videoCodec) + "_" +
		textutil.SanitizeToken(audioCodec)
}

// Path returns where the entry for key lives, whether or not it exists.
func (m *Manager) Path(key string) string {
	return filepath.Join(m.root, key+"."+m.container)
}

// Lookup returns the entry path when a complete entry exists.
func (m *Manager) Lookup(key string) (string, bool) {
	path := m.Path(key)
	if _, err := fileutil.NonEmptyFile(path); err != nil {
		return "", false
	}
	return path, true
}

// Populate returns the entry for key, producing it first when absent. hit
// reports whether an existing entry was reused. Producer errors are returned
// unchanged; failures of the cache itself wrap ErrWriteFailed.
func (m *Manager) Populate(ctx context.Context, key string, produce Producer) (path string, hit bool, err error) {
	if path, ok := m.Lookup(key); ok {
		m.touch(path)
		return path, true, nil
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", false, fmt.Errorf("intercache: %w: create cache directory: %w", ErrWriteFailed, err)
	}

	lock, err := m.lock(ctx, key)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", false, ctxErr
		}
		return "", false, fmt.Errorf("intercache: %w: %w", ErrWriteFailed, err)
	}
	defer m.release(key, lock)

	// Another producer may have published while we waited.
	if path, ok := m.Lookup(key); ok {
		m.touch(path)
		m.logger.DebugContext(ctx, "cache entry published concurrently", logging.String("key", key))
		return path, true, nil
	}

	final := m.Path(key)
	tmp := filepath.Join(m.root, "."+key+"."+uuid.NewString()+partialMarker+m.container)
	defer func() {
		_ = fileutil.RemoveIfExists(tmp)
	}()

	started := m.now()
	if err := produce(ctx, tmp); err != nil {
		return "", false, err
	}
	size, err := fileutil.NonEmptyFile(tmp)
	if err != nil {
		if errors.Is(err, fileutil.ErrEmptyFile) || errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("intercache: %s: %w", key, ErrEmptyOutput)
		}
		return "", false, fmt.Errorf("intercache: %w: inspect %s: %w", ErrWriteFailed, tmp, err)
	}
	if err := atomic.ReplaceFile(tmp, final); err != nil {
		return "", false, fmt.Errorf("intercache: %w: publish %s: %w", ErrWriteFailed, key, err)
	}

	m.logger.InfoContext(ctx, "stored intermediate",
		logging.String("key", key),
		logging.String("cache_path", final),
		logging.Int64("size_bytes", size),
		logging.Duration("elapsed", m.now().Sub(started)),
	)
	if err := m.prune(ctx, final); err != nil {
		logging.WarnWithContext(m.logger, "cache prune after store failed", "intercache_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `vdcrpt cache prune` or raise cache.max_gib"),
			logging.String(logging.FieldImpact, "cache may exceed its size budget"),
		)
	}
	return final, false, nil
}

// Remove deletes the entry for key under its lock, waiting for a running
// populate of the same key to finish. A missing entry is not an error.
func (m *Manager) Remove(ctx context.Context, key string) error {
	if _, err := os.Stat(m.root); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	lock, err := m.lock(ctx, key)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("intercache: remove: %w", err)
	}
	defer m.release(key, lock)
	if err := fileutil.RemoveIfExists(m.Path(key)); err != nil {
		return fmt.Errorf("intercache: remove %s: %w", key, err)
	}
	return nil
}

func (m *Manager) lockPath(key string) string {
	return filepath.Join(m.root, key+lockSuffix)
}

// lock blocks until key's lock file is held or ctx ends.
func (m *Manager) lock(ctx context.Context, key string) (*flock.Flock, error) {
	lock := flock.New(m.lockPath(key))
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s not acquired", key)
	}
	return lock, nil
}

// release unlinks the lock file and then unlocks it. A waiter still blocked
// on the unlinked file re-checks for a published entry once it gets the lock.
func (m *Manager) release(key string, lock *flock.Flock) {
	if err := fileutil.RemoveIfExists(lock.Path()); err != nil {
		m.logger.Debug("remove cache lock failed", logging.String("key", key), logging.Error(err))
	}
	if err := lock.Unlock(); err != nil {
		m.logger.Debug("release cache lock failed", logging.String("key", key), logging.Error(err))
	}
}

// whenIdle runs fn under key's lock without waiting. It reports false and
// skips fn when another populate or remove holds the lock.
func (m *Manager) whenIdle(key string, fn func() error) (bool, error) {
	lock := flock.New(m.lockPath(key))
	locked, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("intercache: lock %s: %w", key, err)
	}
	if !locked {
		return false, nil
	}
	defer m.release(key, lock)
	return true, fn()
}

// Prune removes entries based on size and free-space thresholds.
// keepPath, when provided, is never deleted.
func (m *Manager) Prune(ctx context.Context, keepPath string) error {
	return m.prune(ctx, keepPath)
}

// Clear removes every entry, any partial files left by interrupted runs and
// their lock files. Keys locked by a running populate are skipped. It returns
// the number of entries removed.
func (m *Manager) Clear(ctx context.Context) (int, error) {
	names, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("intercache: list root: %w", err)
	}
	files := make(map[string][]string)
	for _, entry := range names {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, lockSuffix):
			if key := strings.TrimSuffix(name, lockSuffix); files[key] == nil {
				files[key] = []string{}
			}
		case m.isEntryName(name):
			key := strings.TrimSuffix(name, "."+m.container)
			files[key] = append(files[key], name)
		case strings.Contains(name, partialMarker):
			key := partialKey(name)
			files[key] = append(files[key], name)
		}
	}
	keys := make([]string, 0, len(files))
	for key := range files {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	removed := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		idle, err := m.whenIdle(key, func() error {
			for _, name := range files[key] {
				if err := fileutil.RemoveIfExists(filepath.Join(m.root, name)); err != nil {
					return fmt.Errorf("intercache: remove %s: %w", name, err)
				}
				if m.isEntryName(name) {
					removed++
				}
			}
			return nil
		})
		if err != nil {
			return removed, err
		}
		if !idle {
			m.logger.DebugContext(ctx, "skipped busy cache key", logging.String("key", key))
		}
	}
	m.logger.InfoContext(ctx, "cleared intermediate cache", logging.Int("entries_removed", removed))
	return removed, nil
}

// partialKey recovers the key from "."+key+"."+uuid+partialMarker+container.
func partialKey(name string) string {
	head := strings.TrimPrefix(name[:strings.Index(name, partialMarker)], ".")
	if i := strings.LastIndex(head, "."); i >= 0 {
		return head[:i]
	}
	return head
}

// prune removes oldest cache entries until both size and free-space thresholds are satisfied.
func (m *Manager) prune(ctx context.Context, keepPath string) error {
	entries, totalSize, err := m.scan()
	if err != nil {
		return err
	}

	for len(entries) > 0 {
		freeOK, err := m.freeSpaceOK()
		if err != nil {
			return err
		}
		sizeOK := m.maxBytes <= 0 || totalSize <= m.maxBytes
		if sizeOK && freeOK {
			return nil
		}
		oldest := entries[0]
		entries = entries[1:]
		if samePath(oldest.path, keepPath) {
			if len(entries) == 0 {
				return fmt.Errorf("intercache: cache over limits and active entry %q cannot be pruned", keepPath)
			}
			continue
		}
		idle, err := m.whenIdle(oldest.key, func() error {
			return fileutil.RemoveIfExists(oldest.path)
		})
		if err != nil {
			return fmt.Errorf("intercache: remove %q: %w", oldest.path, err)
		}
		if !idle {
			continue
		}
		m.logger.InfoContext(ctx, "pruned cache entry",
			logging.String("cache_path", oldest.path),
			logging.Int64("entry_size_bytes", oldest.sizeBytes),
		)
		totalSize -= oldest.sizeBytes
	}
	return nil
}

type cacheEntry struct {
	key       string
	path      string
	sizeBytes int64
	modTime   time.Time
}

// scan lists complete entries, oldest first.
func (m *Manager) scan() ([]cacheEntry, int64, error) {
	entries := make([]cacheEntry, 0)
	var total int64
	rootEntries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, 0, nil
		}
		return nil, 0, fmt.Errorf("intercache: list root: %w", err)
	}
	for _, entry := range rootEntries {
		if !entry.Type().IsRegular() || !m.isEntryName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			m.logger.Warn("intercache: skip entry; excluded from stats and pruning",
				logging.String("cache_path", filepath.Join(m.root, entry.Name())),
				logging.Error(err),
				logging.String(logging.FieldEventType, "intercache_entry_skipped"),
				logging.String(logging.FieldErrorHint, "inspect cache directory permissions or remove the entry"),
			)
			continue
		}
		total += info.Size()
		entries = append(entries, cacheEntry{
			key:       strings.TrimSuffix(entry.Name(), "."+m.container),
			path:      filepath.Join(m.root, entry.Name()),
			sizeBytes: info.Size(),
			modTime:   info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})
	return entries, total, nil
}

func (m *Manager) isEntryName(name string) bool {
	return !strings.HasPrefix(name, ".") && strings.HasSuffix(name, "."+m.container)
}

func (m *Manager) freeSpaceOK() (bool, error) {
	total, free, err := m.statfs(m.root)
	if err != nil {
		return false, fmt.Errorf("intercache: statfs: %w", err)
	}
	if total == 0 {
		return true, nil
	}
	ratio := float64(free) / float64(total)
	return ratio >= freeSpaceFloor, nil
}

// touch bumps the entry's mtime so pruning evicts least recently used first.
func (m *Manager) touch(path string) {
	now := m.now()
	if err := os.Chtimes(path, now, now); err != nil {
		m.logger.Debug("touch cache entry failed", logging.String("cache_path", path), logging.Error(err))
	}
}

func samePath(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	if errA == nil {
		a = ra
	}
	if errB == nil {
		b = rb
	}
	return a == b
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
