package wreco

import (
	"context"
	"runtime"

	"go-hep.org/x/hep/fmom"
	"golang.org/x/sync/errgroup"
)

// Event is one input record: an identifier plus the two measurements.
// Either measurement may be nil when the upstream record lacked it.
type Event struct {
	ID     int64
	Lepton fmom.P4
	MET    *MissingET
}

// Outcome pairs an event with its reconstruction.
type Outcome struct {
	Event          Event
	Reconstruction Reconstruction
	// Err is set when the event was not reconstructed: a missing
	// measurement or a cancelled context. Solver failures are reported
	// in Reconstruction.Err instead.
	Err error
}

// ProcessBatch reconstructs events concurrently with at most workers
// goroutines (NumCPU when workers <= 0). Outcomes are returned in input
// order. Once ctx is cancelled no further events are started; those
// outcomes carry ctx.Err().
func ProcessBatch(ctx context.Context, b *Builder, events []Event, workers int) []Outcome {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make([]Outcome, len(events))

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i := range events {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(events); j++ {
				out[j] = Outcome{Event: events[j], Err: err}
			}
			break
		}
		g.Go(func() error {
			ev := events[i]
			if err := ctx.Err(); err != nil {
				out[i] = Outcome{Event: ev, Err: err}
				return nil
			}
			rec, err := b.Build(ev.Lepton, ev.MET)
			out[i] = Outcome{Event: ev, Reconstruction: rec, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
