package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"hivemind.ai/internal/sim/diag"
	"hivemind.ai/internal/sim/session"
)

// Restore decodes blob into a session state. A missing blob is a plain cold
// start; an undecodable one is reported and also yields a cold start.
func Restore(blob []byte, tick uint64, sink diag.Sink) *session.State {
	if len(blob) == 0 {
		return session.NewState()
	}
	st, _, err := Decode(blob)
	if err != nil {
		if sink != nil {
			sink.Emit(diag.Entry{Tick: tick, Kind: diag.KindCorruptState, Message: err.Error()})
		}
		return session.NewState()
	}
	return st
}

// FileStore keeps one snapshot file per saved tick in Dir.
type FileStore struct {
	Dir string
	// Keep bounds the number of files retained; 0 keeps everything.
	Keep int
}

func (s *FileStore) path(tick uint64) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%d.snap.zst", tick))
}

func (s *FileStore) SaveState(_ context.Context, tick uint64, blob []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	path := s.path(tick)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return s.prune()
}

// LoadLatest returns the blob with the highest tick. ok is false when the
// directory holds no snapshot.
func (s *FileStore) LoadLatest(_ context.Context) (tick uint64, blob []byte, ok bool, err error) {
	ticks, err := s.ticks()
	if err != nil || len(ticks) == 0 {
		return 0, nil, false, err
	}
	tick = ticks[len(ticks)-1]
	blob, err = os.ReadFile(s.path(tick))
	if err != nil {
		return 0, nil, false, err
	}
	return tick, blob, true, nil
}

// ticks lists saved ticks in ascending order.
func (s *FileStore) ticks() ([]uint64, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		t, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *FileStore) prune() error {
	if s.Keep <= 0 {
		return nil
	}
	ticks, err := s.ticks()
	if err != nil {
		return err
	}
	for len(ticks) > s.Keep {
		if err := os.Remove(s.path(ticks[0])); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		ticks = ticks[1:]
	}
	return nil
}
