package memmon

import (
	"fmt"

	"github.com/cubrid-go/memmon/internal/memmon/report"
)

// AggregateServerInfo fills out a point-in-time snapshot of every
// registered stat plus the process-wide totals (spec.md §4.5). It is
// concurrent-safe against ongoing allocate/free: each individual
// counter is read atomically, but the snapshot as a whole is not
// linearizable across counters, so callers must not assume
// TotalCurrent equals the sum of Stats[i].Current in the same report
// (spec.md §5's ordering guarantees).
//
// Zero-current entries are omitted, matching spec.md §4.5's "may filter
// zero-current entries" allowance — a long-running process accumulates
// many fingerprints whose allocations have all since been freed, and a
// renderer has no use for an all-zero row.
func AggregateServerInfo() *report.Report {
	state := current()
	if state == nil {
		return report.New("")
	}

	return state.aggregate()
}

func (p *ProcessState) aggregate() *report.Report {
	out := report.New(p.config.ServerName)
	out.TotalCurrent = p.counters.totalCurrent.Load()
	out.TotalPeak = p.counters.totalPeak.Load()
	out.TotalMetaInfo = p.counters.totalMetaInfo.Load()
	out.SystemMemory = systemMemory()

	n := p.counters.len()
	out.NumStats = n
	out.Stats = make([]report.StatLine, 0, n)

	for i := 0; i < n; i++ {
		entry := p.counters.at(StatID(i))

		current := entry.Current.Load()
		if current == 0 {
			continue
		}

		out.Stats = append(out.Stats, report.StatLine{
			Fingerprint: entry.Fingerprint,
			Current:     current,
			Peak:        entry.Peak.Load(),
			AllocCount:  entry.AllocCount.Load(),
		})
	}

	return out
}

// FinalizeDump writes a human-readable listing of every non-zero
// StatEntry to state.config.DebugSink, to aid leak detection at
// process shutdown (spec.md §4.5's "In debug builds only, on finalize
// the aggregator writes a human-readable dump"). It never touches
// counters and never participates in the tracked allocation path.
func FinalizeDump(state *ProcessState) {
	if state == nil || state.config.DebugSink == nil {
		return
	}

	rpt := state.aggregate()

	w := state.config.DebugSink
	fmt.Fprintf(w, "memmon: finalize dump for %q (%d live buckets)\n", rpt.ServerName, len(rpt.Stats))

	for _, s := range rpt.Stats {
		fmt.Fprintf(w, "  %-40s current=%d peak=%d allocs=%d\n", s.Fingerprint, s.Current, s.Peak, s.AllocCount)
	}

	if len(rpt.Stats) == 0 {
		fmt.Fprintln(w, "  (no live allocations)")
	}
}
