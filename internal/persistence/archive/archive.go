package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"hivemind.ai/internal/persistence/snapshot"
)

const (
	snapshotName = "state.snap.zst"
	metaName     = "meta.json"
	dirPrefix    = "tick_"
)

// Meta sits next to every archived snapshot.
type Meta struct {
	Tick       uint64 `json:"tick"`
	Agents     int    `json:"agents"`
	Zones      int    `json:"zones"`
	Tasks      int    `json:"tasks"`
	Snapshot   string `json:"snapshot"`
	ArchivedAt string `json:"archived_at"`
}

// Store archives snapshots as <Dir>/tick_<NNNNNNNNNN>/state.snap.zst with a
// meta.json beside it. It satisfies the scheduler's store interface so a
// runner can use it as its Archive.
type Store struct {
	Dir string
	// Keep bounds the number of archive directories; 0 keeps everything.
	Keep int
	// OnArchived, when set, observes every file the store writes.
	OnArchived func(path string)
}

func (s *Store) dir(tick uint64) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s%010d", dirPrefix, tick))
}

func (s *Store) SaveState(_ context.Context, tick uint64, blob []byte) error {
	h, err := snapshot.PeekHeader(blob)
	if err != nil {
		return fmt.Errorf("archive tick %d: %w", tick, err)
	}
	dir := s.dir(tick)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	snapPath := filepath.Join(dir, snapshotName)
	if err := writeAtomic(snapPath, blob); err != nil {
		return err
	}

	meta := Meta{
		Tick:       tick,
		Agents:     h.Agents,
		Zones:      h.Zones,
		Tasks:      h.Tasks,
		Snapshot:   snapshotName,
		ArchivedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	metaPath := filepath.Join(dir, metaName)
	if err := writeAtomic(metaPath, b); err != nil {
		return err
	}

	if s.OnArchived != nil {
		s.OnArchived(snapPath)
		s.OnArchived(metaPath)
	}
	return s.prune()
}

// LoadLatest returns the newest archived blob.
func (s *Store) LoadLatest(_ context.Context) (tick uint64, blob []byte, ok bool, err error) {
	ticks, err := s.ticks()
	if err != nil || len(ticks) == 0 {
		return 0, nil, false, err
	}
	tick = ticks[len(ticks)-1]
	blob, err = os.ReadFile(filepath.Join(s.dir(tick), snapshotName))
	if err != nil {
		return 0, nil, false, err
	}
	return tick, blob, true, nil
}

// List returns the metadata of every archive, oldest first. Directories
// without a readable meta.json are skipped.
func (s *Store) List() ([]Meta, error) {
	ticks, err := s.ticks()
	if err != nil {
		return nil, err
	}
	out := make([]Meta, 0, len(ticks))
	for _, t := range ticks {
		b, err := os.ReadFile(filepath.Join(s.dir(t), metaName))
		if err != nil {
			continue
		}
		var m Meta
		if err := json.Unmarshal(b, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Export copies the archive for tick to dst.
func (s *Store) Export(tick uint64, dst string) error {
	return copyFile(filepath.Join(s.dir(tick), snapshotName), dst)
}

func (s *Store) ticks() ([]uint64, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []uint64
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		t, err := strconv.ParseUint(strings.TrimPrefix(e.Name(), dirPrefix), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) prune() error {
	if s.Keep <= 0 {
		return nil
	}
	ticks, err := s.ticks()
	if err != nil {
		return err
	}
	for len(ticks) > s.Keep {
		if err := os.RemoveAll(s.dir(ticks[0])); err != nil {
			return err
		}
		ticks = ticks[1:]
	}
	return nil
}

func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
