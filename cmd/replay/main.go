package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"hivemind.ai/internal/persistence/snapshot"
	"hivemind.ai/internal/sim/control"
	"hivemind.ai/internal/sim/gridworld"
	"hivemind.ai/internal/sim/scheduler"
	"hivemind.ai/internal/sim/tuning"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "runtime data directory (reads ticks/ticks-*.jsonl.zst)")
		snapPath   = flag.String("snapshot", "", "print the header of this .snap.zst first (optional)")
		fromTick   = flag.Uint64("from_tick", 0, "first tick to print or verify (inclusive)")
		toTick     = flag.Uint64("to_tick", 0, "last tick to print or verify (inclusive, 0: all)")
		agent      = flag.String("agent", "", "print only this agent's decisions")
		verify     = flag.Bool("verify", false, "re-run the controller against the world from -world and compare decisions")
		worldPath  = flag.String("world", "", "world.yaml the logged -local run used (default: built-in demo world)")
		tuningPath = flag.String("tuning", "", "tuning.yaml the logged run used (default: built-in tuning)")
	)
	flag.Parse()

	if *snapPath != "" {
		blob, err := os.ReadFile(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		h, err := snapshot.PeekHeader(blob)
		if err != nil {
			fmt.Fprintln(os.Stderr, "snapshot header:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d tick=%d agents=%d zones=%d tasks=%d\n", h.Version, h.Tick, h.Agents, h.Zones, h.Tasks)
	}

	files, err := listTickFiles(filepath.Join(*dataDir, "ticks"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list tick logs:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick logs found in", filepath.Join(*dataDir, "ticks"))
		os.Exit(1)
	}

	win := window{from: *fromTick, to: *toTick}
	if !*verify {
		for _, path := range files {
			if err := eachReport(path, func(rep scheduler.Report) bool {
				if win.to != 0 && rep.Tick > win.to {
					return false
				}
				if win.contains(rep.Tick) {
					printReport(os.Stdout, rep, *agent)
				}
				return true
			}); err != nil {
				fmt.Fprintln(os.Stderr, "read:", err)
				os.Exit(1)
			}
		}
		return
	}

	cfg, err := gridworld.Load(*worldPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load world:", err)
		os.Exit(1)
	}
	tune := tuning.Defaults()
	if *tuningPath != "" {
		if tune, err = tuning.Load(*tuningPath); err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
	}
	tune.Normalize()

	checked, err := verifyLogs(cfg, tune, files, win)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks\n", checked)
}

type window struct{ from, to uint64 }

func (w window) contains(tick uint64) bool {
	return tick >= w.from && (w.to == 0 || tick <= w.to)
}

func listTickFiles(dir string) ([]string, error) {
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
		if strings.HasPrefix(name, "ticks-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// eachReport decodes the reports in one tick log until fn returns false.
func eachReport(path string, fn func(scheduler.Report) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var rep scheduler.Report
		if err := json.Unmarshal(sc.Bytes(), &rep); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if !fn(rep) {
			return nil
		}
	}
	return sc.Err()
}

func printReport(w io.Writer, rep scheduler.Report, agent string) {
	if agent == "" {
		mode := "fast"
		if rep.Slow {
			mode = "slow"
		}
		fmt.Fprintf(w, "tick %d %s decisions=%d produced=%d\n", rep.Tick, mode, len(rep.Decisions), len(rep.Produced))
		for _, p := range rep.Produced {
			fmt.Fprintf(w, "  produce %s role=%s facility=%s/%s\n", p.Name, p.Role, p.Zone, p.Facility)
		}
	}
	for _, d := range rep.Decisions {
		if agent != "" && d.Agent != agent {
			continue
		}
		fmt.Fprintf(w, "  %d %s %s %s step=%s\n", rep.Tick, d.Agent, orDash(string(d.Command)), orDash(string(d.Code)), orDash(string(d.Step)))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// verifyLogs re-runs a cold-start controller against a fresh world built
// from cfg and checks that every logged tick in win made the same
// decisions. The logs must start at the world's first tick.
func verifyLogs(cfg gridworld.Config, tune tuning.Tuning, files []string, win window) (uint64, error) {
	w, err := gridworld.New(cfg)
	if err != nil {
		return 0, err
	}
	runner := scheduler.NewRunner(scheduler.New(w, tune, nil), nil, nil, nil)
	if err := runner.Open(context.Background()); err != nil {
		return 0, err
	}

	var checked uint64
	var failure error
	for _, path := range files {
		err := eachReport(path, func(want scheduler.Report) bool {
			if win.to != 0 && want.Tick > win.to {
				return false
			}
			if want.Tick != w.Tick() {
				failure = fmt.Errorf("tick mismatch: world=%d log=%d (file=%s)", w.Tick(), want.Tick, filepath.Base(path))
				return false
			}
			got, _ := runner.Tick(context.Background(), w)
			w.Step()
			if !win.contains(want.Tick) {
				return true
			}
			checked++
			if !sameDecisions(got.Decisions, want.Decisions) {
				failure = fmt.Errorf("decisions differ at tick %d: got=%v want=%v", want.Tick, got.Decisions, want.Decisions)
				return false
			}
			return true
		})
		if err != nil {
			return checked, err
		}
		if failure != nil {
			return checked, failure
		}
		if win.to != 0 && w.Tick() > win.to {
			break
		}
	}
	return checked, nil
}

func sameDecisions(a, b []control.Decision) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
