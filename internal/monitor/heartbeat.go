// Package monitor watches the bot's update loop. The transport beats on
// every poll cycle; when too many beats go missing the administrators get an
// alert with the process's own resource usage attached, and a recovery note
// once beats resume.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Alerter delivers operator alerts. Implemented by the transport, which
// fans the text out to every administrator.
type Alerter interface {
	Alert(text string)
}

// Heartbeat tracks the time of the last beat and probes it on a fixed
// interval.
type Heartbeat struct {
	mu            sync.Mutex
	log           *slog.Logger
	interval      time.Duration
	allowedMissed int
	alerter       Alerter
	lastBeat      time.Time
	alerted       bool
	now           func() time.Time
}

func NewHeartbeat(interval time.Duration, allowedMissed int, log *slog.Logger) *Heartbeat {
	return &Heartbeat{
		log:           log,
		interval:      interval,
		allowedMissed: allowedMissed,
		lastBeat:      time.Now(),
		now:           time.Now,
	}
}

// SetAlerter attaches the alert sink. Without one, problems are only logged.
func (h *Heartbeat) SetAlerter(a Alerter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerter = a
}

// Beat records liveness. The first beat after an outage triggers a recovery
// alert.
func (h *Heartbeat) Beat() {
	h.mu.Lock()
	h.lastBeat = h.now()
	recovered := h.alerted
	h.alerted = false
	alerter := h.alerter
	h.mu.Unlock()

	if recovered {
		h.log.Info("heartbeat recovered")
		if alerter != nil {
			alerter.Alert("✅ Update loop recovered, heartbeats are back.")
		}
	}
}

// Run probes for missed beats until the context is cancelled.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return fmt.Errorf("attaching to own process: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.check(proc)
		}
	}
}

func (h *Heartbeat) check(proc *process.Process) {
	h.mu.Lock()
	elapsed := h.now().Sub(h.lastBeat)
	threshold := time.Duration(h.allowedMissed) * h.interval
	fire := elapsed > threshold && !h.alerted
	if fire {
		h.alerted = true
	}
	alerter := h.alerter
	h.mu.Unlock()

	if !fire {
		return
	}
	missed := int(elapsed / h.interval)
	text := fmt.Sprintf("🚨 No update-loop heartbeat for %s (%d intervals missed).%s",
		elapsed.Round(time.Second), missed, selfStats(proc))
	h.log.Error("heartbeat missing", "elapsed", elapsed, "missed", missed)
	if alerter != nil {
		alerter.Alert(text)
	}
}

// selfStats formats the process's own CPU and memory for the alert text.
// Collection failures degrade to an empty suffix.
func selfStats(proc *process.Process) string {
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return ""
	}
	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return ""
	}
	return fmt.Sprintf(" Process: CPU %.1f%%, RSS %d MiB.", cpuPercent, memInfo.RSS/(1<<20))
}
