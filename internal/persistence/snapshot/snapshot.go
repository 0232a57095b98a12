package snapshot

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"hivemind.ai/internal/sim/session"
)

const Version = 1

// Header is written as a JSON line in front of the gob body so tools can
// peek at a snapshot without decoding all of it.
type Header struct {
	Version int    `json:"version"`
	Tick    uint64 `json:"tick"`
	Agents  int    `json:"agents"`
	Zones   int    `json:"zones"`
	Tasks   int    `json:"tasks"`
}

type StateV1 struct {
	Header Header `json:"header"`

	LastScanTick uint64 `json:"last_scan_tick"`

	// Tasks keep queue order: zones by name, roles by priority, then FIFO.
	Tasks  []TaskV1  `json:"tasks"`
	Agents []AgentV1 `json:"agents"`
}

type TaskV1 struct {
	Zone     string   `json:"zone"`
	Role     string   `json:"role"`
	Kind     string   `json:"kind"`
	TargetID string   `json:"target_id"`
	Capacity int      `json:"capacity"`
	Workers  []string `json:"workers,omitempty"`
}

type AgentV1 struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Zone     string `json:"zone"`
	BornTick uint64 `json:"born_tick"`

	TaskKind     string   `json:"task_kind"`
	TaskZone     string   `json:"task_zone,omitempty"`
	TaskTargetID string   `json:"task_target_id,omitempty"`
	TaskCapacity int      `json:"task_capacity,omitempty"`
	TaskWorkers  []string `json:"task_workers,omitempty"`

	Step      string `json:"step,omitempty"`
	PanicCode string `json:"panic_code,omitempty"`

	Path *PathV1 `json:"path,omitempty"`
}

type PathV1 struct {
	Encoded   string `json:"encoded"`
	Dest      [2]int `json:"dest"`
	Proximity string `json:"proximity"`
}

// Encode writes st as a compressed blob.
func Encode(st *session.State, tick uint64) ([]byte, error) {
	var buf bytes.Buffer
	if err := write(&buf, Export(st, tick)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a blob written by Encode. Any failure is reported as
// session.ErrCorruptState.
func Decode(blob []byte) (*session.State, Header, error) {
	snap, err := read(bytes.NewReader(blob))
	if err != nil {
		return nil, Header{}, fmt.Errorf("%w: %v", session.ErrCorruptState, err)
	}
	st, err := Import(snap)
	if err != nil {
		return nil, snap.Header, fmt.Errorf("%w: %v", session.ErrCorruptState, err)
	}
	return st, snap.Header, nil
}

// PeekHeader decodes only the header line of a blob.
func PeekHeader(blob []byte) (Header, error) {
	var h Header
	dec, err := zstd.NewReader(bytes.NewReader(blob))
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func WriteFile(path string, st *session.State, tick uint64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	blob, err := Encode(st, tick)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadFile(path string) (*session.State, Header, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, Header{}, err
	}
	return Decode(blob)
}

func write(w io.Writer, snap StateV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func read(r io.Reader) (StateV1, error) {
	var snap StateV1
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("unsupported version %d", h.Version)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
