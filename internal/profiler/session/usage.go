package session

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/coral-mesh/cpuprof/internal/safe"
)

// usageProbe reads the CPU time consumed by the profiled process so a report
// can carry the actual usage over its sampling window.
type usageProbe struct {
	proc   *process.Process
	cpus   int
	logger zerolog.Logger
}

func newUsageProbe(logger zerolog.Logger) *usageProbe {
	p := &usageProbe{logger: logger}

	pid, _ := safe.IntToInt32(os.Getpid())
	proc, err := process.NewProcess(pid)
	if err != nil {
		logger.Debug().Err(err).Msg("Process CPU usage unavailable")
	} else {
		p.proc = proc
	}

	if n, err := cpu.Counts(true); err == nil {
		p.cpus = n
	}
	return p
}

// cpuSeconds returns user plus system CPU seconds used so far, or -1 when
// unavailable.
func (p *usageProbe) cpuSeconds(ctx context.Context) float64 {
	if p == nil || p.proc == nil {
		return -1
	}
	times, err := p.proc.TimesWithContext(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Failed to read process CPU times")
		return -1
	}
	return times.User + times.System
}

// comments renders the usage between two readings as report comments.
func (p *usageProbe) comments(before, after float64) []string {
	var out []string
	if before >= 0 && after >= before {
		out = append(out, fmt.Sprintf("process_cpu_seconds=%.3f", after-before))
	}
	if p != nil && p.cpus > 0 {
		out = append(out, fmt.Sprintf("logical_cpus=%d", p.cpus))
	}
	return out
}
