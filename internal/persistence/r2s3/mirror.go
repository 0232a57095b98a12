package r2s3

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Uploader is the part of Client the mirror needs.
type Uploader interface {
	PutFile(ctx context.Context, objectKey, localPath string) error
}

// MirrorConfig tunes the upload queue. Zero values pick defaults.
type MirrorConfig struct {
	// Root is the data dir; object keys are archive paths relative to it.
	Root          string
	Prefix        string
	Workers       int
	QueueCapacity int
	MaxAttempts   int
}

// Stats counts what the mirror did with archived files.
type Stats struct {
	Queued   uint64
	Uploaded uint64
	Failed   uint64
	Dropped  uint64
}

// Mirror copies archived snapshot files to a bucket off the tick loop, so
// a lost controller host can be restored from off-host storage. Enqueue
// never blocks: when the queue is full the file is dropped and the next
// archive catches up.
type Mirror struct {
	up       Uploader
	root     string
	prefix   string
	attempts int
	backoff  time.Duration
	logger   *log.Logger

	files chan string
	wg    sync.WaitGroup

	queued, uploaded, failed, dropped atomic.Uint64
}

func NewMirror(up Uploader, cfg MirrorConfig, logger *log.Logger) *Mirror {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	m := &Mirror{
		up:       up,
		root:     cfg.Root,
		prefix:   strings.Trim(strings.ReplaceAll(cfg.Prefix, "\\", "/"), "/"),
		attempts: cfg.MaxAttempts,
		backoff:  200 * time.Millisecond,
		logger:   logger,
		files:    make(chan string, cfg.QueueCapacity),
	}
	m.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func() {
			defer m.wg.Done()
			for f := range m.files {
				m.upload(f)
			}
		}()
	}
	return m
}

// Enqueue is the archive store's OnArchived hook.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	select {
	case m.files <- localPath:
		m.queued.Add(1)
	default:
		n := m.dropped.Add(1)
		m.printf("archive mirror: queue full, dropped %s (dropped=%d)", localPath, n)
	}
}

// Close waits for queued uploads to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.files)
	m.wg.Wait()
	st := m.Stats()
	m.printf("archive mirror: closed uploaded=%d failed=%d dropped=%d", st.Uploaded, st.Failed, st.Dropped)
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		Queued:   m.queued.Load(),
		Uploaded: m.uploaded.Load(),
		Failed:   m.failed.Load(),
		Dropped:  m.dropped.Load(),
	}
}

func (m *Mirror) upload(localPath string) {
	key, err := m.key(localPath)
	if err == nil {
		err = m.put(key, localPath)
	}
	if err != nil {
		m.failed.Add(1)
		m.printf("archive mirror: %s: %v", localPath, err)
		return
	}
	m.uploaded.Add(1)
}

func (m *Mirror) put(key, localPath string) error {
	var err error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		if err = m.up.PutFile(context.Background(), key, localPath); err == nil {
			return nil
		}
		if attempt < m.attempts {
			time.Sleep(time.Duration(attempt) * m.backoff)
		}
	}
	return fmt.Errorf("after %d attempts: %w", m.attempts, err)
}

func (m *Mirror) key(localPath string) (string, error) {
	root, err := filepath.Abs(m.root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("not under data dir %s", root)
	}
	return path.Join(m.prefix, rel), nil
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
