package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"hivemind.ai/internal/persistence/snapshot"
	"hivemind.ai/internal/sim/diag"
	"hivemind.ai/internal/sim/session"
	"hivemind.ai/internal/sim/tasks"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "state":
			stateCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "diag":
			diagCmd(os.Args[2:])
			return
		case "world":
			worldCmd(os.Args[2:])
			return
		case "archive":
			archiveCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the header of every snapshot file, newest first.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	dir := filepath.Join(*dataDir, "snapshots")
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".snap.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	enc := json.NewEncoder(os.Stdout)
	for _, name := range names {
		blob, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintln(os.Stderr, name+":", err)
			continue
		}
		h, err := snapshot.PeekHeader(blob)
		if err != nil {
			fmt.Fprintln(os.Stderr, name+":", err)
			continue
		}
		_ = enc.Encode(struct {
			File string `json:"file"`
			snapshot.Header
		}{File: name, Header: h})
	}
}

type taskSummary struct {
	Zone     string   `json:"zone"`
	Role     string   `json:"role"`
	Kind     string   `json:"kind"`
	Target   string   `json:"target"`
	Capacity int      `json:"capacity"`
	Workers  []string `json:"workers"`
}

type stateSummary struct {
	Tick         uint64         `json:"tick"`
	LastScanTick uint64         `json:"last_scan_tick"`
	Roles        map[string]int `json:"roles"`
	Idle         []string       `json:"idle,omitempty"`
	Panicking    []string       `json:"panicking,omitempty"`
	Tasks        []taskSummary  `json:"tasks"`
	Problems     []string       `json:"problems,omitempty"`
}

// stateCmd decodes one snapshot file and summarizes it.
func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	path := fs.String("snapshot", "", "snapshot file (default: latest in <data>/snapshots)")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" {
		store := &snapshot.FileStore{Dir: filepath.Join(*dataDir, "snapshots")}
		tick, blob, ok, err := store.LoadLatest(context.Background())
		if err != nil {
			fmt.Fprintln(os.Stderr, "load:", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "no snapshot found")
			os.Exit(2)
		}
		printState(blob, tick)
		return
	}
	blob, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	printState(blob, 0)
}

func printState(blob []byte, tick uint64) {
	st, h, err := snapshot.Decode(blob)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	if tick == 0 {
		tick = h.Tick
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summarize(st, tick))
}

func summarize(st *session.State, tick uint64) stateSummary {
	out := stateSummary{Tick: tick, LastScanTick: st.LastScanTick, Roles: map[string]int{}}
	for _, name := range st.AgentNames() {
		rec := st.Agents[name]
		out.Roles[string(rec.Role)]++
		if rec.CurrentTask.IsIdle() {
			out.Idle = append(out.Idle, name)
		}
		if rec.Step != nil && rec.Step.Kind == session.StepPanic {
			out.Panicking = append(out.Panicking, name+" "+string(rec.Step.Code))
		}
	}
	for _, zone := range st.Queues.ZoneNames() {
		for _, role := range tasks.RolePriority {
			for _, t := range st.Queues[zone][role] {
				out.Tasks = append(out.Tasks, taskSummary{
					Zone:     zone,
					Role:     string(role),
					Kind:     string(t.Kind),
					Target:   t.TargetID,
					Capacity: t.Capacity,
					Workers:  t.Workers,
				})
				if len(t.Workers) > t.Capacity {
					out.Problems = append(out.Problems, fmt.Sprintf("%s/%s: %d workers over capacity %d", zone, t.TargetID, len(t.Workers), t.Capacity))
				}
			}
		}
	}
	return out
}

// diagCmd prints diagnostics from the compressed JSONL logs.
func diagCmd(args []string) {
	fs := flag.NewFlagSet("diag", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	kind := fs.String("kind", "", "only this kind (e.g. PANIC)")
	agent := fs.String("agent", "", "only this agent")
	sinceTick := fs.Uint64("since_tick", 0, "skip entries before this tick")
	_ = fs.Parse(args)

	entries, err := readDiagnostics(filepath.Join(*dataDir, "diagnostics"), func(e diag.Entry) bool {
		if *kind != "" && string(e.Kind) != strings.ToUpper(*kind) {
			return false
		}
		if *agent != "" && e.Agent != *agent {
			return false
		}
		return e.Tick >= *sinceTick
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read diagnostics:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.String())
	}
}

func readDiagnostics(dir string, keep func(diag.Entry) bool) ([]diag.Entry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "diag-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []diag.Entry
	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		sc := bufio.NewScanner(dec)
		sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
		for sc.Scan() {
			var e diag.Entry
			if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
				dec.Close()
				_ = f.Close()
				return nil, fmt.Errorf("%s: unmarshal: %w", name, err)
			}
			if keep(e) {
				out = append(out, e)
			}
		}
		err = sc.Err()
		dec.Close()
		_ = f.Close()
		// The newest file may still be open for writing; keep what decoded.
		if err != nil && name != names[len(names)-1] {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return out, nil
}
