package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// TelemetryWorker periodically samples the process's own CPU and memory
// usage together with the number of live connections, and logs them.
// Purely observational: losing a sample has no effect on delivery.
type TelemetryWorker struct {
	log       *slog.Logger
	interval  time.Duration
	connCount func() int
}

func NewTelemetryWorker(log *slog.Logger, interval time.Duration, connCount func() int) *TelemetryWorker {
	return &TelemetryWorker{log: log, interval: interval, connCount: connCount}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			memInfo, err := p.MemoryInfo()
			if err != nil {
				w.log.Error("Failed to collect memory stats", "err", err)
				continue
			}
			cpuPercent, err := p.CPUPercent()
			if err != nil {
				w.log.Error("Failed to collect cpu stats", "err", err)
				continue
			}
			w.log.Info("Server telemetry",
				"rss_bytes", memInfo.RSS,
				"cpu_percent", cpuPercent,
				"live_connections", w.connCount())
		}
	}
}
