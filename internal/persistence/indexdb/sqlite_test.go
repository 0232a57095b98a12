package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"hivemind.ai/internal/sim/diag"
)

func openTest(t *testing.T, keep int) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "hivemind.sqlite"), keep)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteIndex_SaveAndLoadLatest(t *testing.T) {
	ctx := context.Background()
	idx := openTest(t, 2)

	if _, _, ok, err := idx.LoadLatest(ctx); ok || err != nil {
		t.Fatalf("empty index: ok=%v err=%v", ok, err)
	}
	for _, tick := range []uint64{3, 7, 11} {
		if err := idx.SaveStateRow(ctx, StateRow{Tick: tick, Agents: int(tick)}, []byte{byte(tick)}); err != nil {
			t.Fatalf("save %d: %v", tick, err)
		}
	}
	tick, blob, ok, err := idx.LoadLatest(ctx)
	if err != nil || !ok || tick != 11 || len(blob) != 1 || blob[0] != 11 {
		t.Fatalf("latest: tick=%d blob=%v ok=%v err=%v", tick, blob, ok, err)
	}

	rows, err := idx.States(ctx, 10)
	if err != nil {
		t.Fatalf("states: %v", err)
	}
	if len(rows) != 2 || rows[0].Tick != 11 || rows[1].Tick != 7 || rows[0].Agents != 11 {
		t.Fatalf("rows=%+v", rows)
	}
}

func TestSQLiteIndex_DiagnosticsAndProductions(t *testing.T) {
	ctx := context.Background()
	idx := openTest(t, 0)

	var sink diag.Sink = idx
	sink.Emit(diag.Entry{Tick: 1, Kind: diag.KindPanic, Agent: "Harvester1", Role: "Harvester", Code: "E_X"})
	sink.Emit(diag.Entry{Tick: 2, Kind: diag.KindSelfHeal, Zone: "Z1", Role: "Harvester"})
	sink.Emit(diag.Entry{Tick: 3, Kind: diag.KindPanic, Agent: "Upgrader2", Code: "E_Y"})
	idx.RecordProduction(ProductionRow{Tick: 4, Name: "Harvester4", Role: "Harvester", Zone: "Z1", Facility: "f1", Body: BodyString([]string{"move", "carry", "work"})})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	all, err := idx.Diagnostics(ctx, "", 10)
	if err != nil || len(all) != 3 || all[0].Tick != 3 {
		t.Fatalf("all=%+v err=%v", all, err)
	}
	panics, err := idx.Diagnostics(ctx, diag.KindPanic, 10)
	if err != nil || len(panics) != 2 || panics[1].Code != "E_X" || panics[1].Agent != "Harvester1" {
		t.Fatalf("panics=%+v err=%v", panics, err)
	}

	prods, err := idx.Productions(ctx, 10)
	if err != nil || len(prods) != 1 || prods[0].Body != "move,carry,work" {
		t.Fatalf("productions=%+v err=%v", prods, err)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqDiag}

	s.Emit(diag.Entry{Tick: 2})
	s.RecordProduction(ProductionRow{Tick: 2})

	st := s.Stats()
	if st.DropDiagTotal != 1 || st.DropProductionTotal != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
