package scheduler

import (
	"context"
	"fmt"
	"log"

	"hivemind.ai/internal/persistence/snapshot"
	"hivemind.ai/internal/sim/binding"
	"hivemind.ai/internal/sim/diag"
	"hivemind.ai/internal/sim/session"
)

// Store persists encoded session state between ticks and across restarts.
type Store interface {
	LoadLatest(ctx context.Context) (tick uint64, blob []byte, ok bool, err error)
	SaveState(ctx context.Context, tick uint64, blob []byte) error
}

type TickWriter interface {
	WriteTick(Report) error
}

// Runner owns the session state lifecycle: restore on Open, then step and
// persist once per Tick.
type Runner struct {
	sched  *Scheduler
	store  Store
	sink   diag.Sink
	logger *log.Logger

	// Archive, when set, receives a copy every ArchiveEvery ticks.
	Archive      Store
	ArchiveEvery uint64
	Ticks        TickWriter
	OnTick       func(Report)

	st    *session.State
	fresh bool
}

func NewRunner(sched *Scheduler, store Store, sink diag.Sink, logger *log.Logger) *Runner {
	if sink == nil {
		sink = diag.Discard
	}
	return &Runner{sched: sched, store: store, sink: sink, logger: logger}
}

// Open restores the last persisted state. An undecodable blob is reported
// and replaced by a cold-start state; only store I/O errors are returned.
func (r *Runner) Open(ctx context.Context) error {
	r.fresh = true
	if r.store == nil {
		r.st = session.NewState()
		r.printf("no store; cold start")
		return nil
	}
	tick, blob, ok, err := r.store.LoadLatest(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if !ok {
		r.st = session.NewState()
		r.printf("no saved state; cold start")
		return nil
	}
	r.st = snapshot.Restore(blob, tick, r.sink)
	if r.st.NeedsRebuild {
		r.printf("saved state at tick %d unusable; cold start", tick)
	} else {
		r.printf("restored state tick=%d agents=%d tasks=%d", tick, len(r.st.Agents), r.st.Queues.Count())
	}
	return nil
}

func (r *Runner) State() *session.State { return r.st }

// Tick runs one scheduler step against w and persists the result. The
// step itself never fails; the returned error is about persistence only.
func (r *Runner) Tick(ctx context.Context, w binding.World) (Report, error) {
	if r.st == nil {
		r.st = session.NewState()
		r.fresh = true
	}
	v := binding.Capture(w)

	// A restored session has not seen this world yet.
	if r.fresh && !r.sched.Due(r.st, v.Tick) {
		r.sched.Housekeep(v, r.st)
	}
	r.fresh = false

	rep := r.sched.StepView(v, r.st)
	if r.OnTick != nil {
		r.OnTick(rep)
	}
	if r.Ticks != nil {
		if err := r.Ticks.WriteTick(rep); err != nil {
			r.printf("tick log: %v", err)
		}
	}

	if r.store == nil && r.Archive == nil {
		return rep, nil
	}
	blob, err := snapshot.Encode(r.st, v.Tick)
	if err != nil {
		return rep, fmt.Errorf("encode state: %w", err)
	}
	if r.store != nil {
		if err := r.store.SaveState(ctx, v.Tick, blob); err != nil {
			return rep, fmt.Errorf("save state: %w", err)
		}
	}
	if r.Archive != nil && r.ArchiveEvery > 0 && v.Tick%r.ArchiveEvery == 0 {
		if err := r.Archive.SaveState(ctx, v.Tick, blob); err != nil {
			return rep, fmt.Errorf("archive state: %w", err)
		}
	}
	return rep, nil
}

func (r *Runner) printf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
