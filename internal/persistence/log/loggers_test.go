package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"hivemind.ai/internal/sim/diag"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()
	var out []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	at := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return at }

	if err := w.Write(map[string]int{"a": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	at = at.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"a": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for hour, want := range map[string]string{"10": `{"a":1}`, "11": `{"a":2}`} {
		lines := readLines(t, filepath.Join(dir, "x-2026-03-01-"+hour+".jsonl.zst"))
		if len(lines) != 1 || lines[0] != want {
			t.Fatalf("hour %s lines=%v", hour, lines)
		}
	}
	if w.Lines() != 2 {
		t.Fatalf("lines=%d", w.Lines())
	}
}

func TestDiagnosticsLogger_WritesEntries(t *testing.T) {
	dir := t.TempDir()
	l := NewDiagnosticsLogger(dir)
	var sink diag.Sink = l
	sink.Emit(diag.Entry{Tick: 5, Kind: diag.KindPanic, Agent: "Harvester1", Code: "E_X"})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "diagnostics", "diag-*.jsonl.zst"))
	if len(files) != 1 {
		t.Fatalf("files=%v", files)
	}
	lines := readLines(t, files[0])
	if len(lines) != 1 {
		t.Fatalf("lines=%v", lines)
	}
	var e diag.Entry
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Tick != 5 || e.Kind != diag.KindPanic || e.Code != "E_X" || l.Errors() != 0 {
		t.Fatalf("entry=%+v errors=%d", e, l.Errors())
	}
}
