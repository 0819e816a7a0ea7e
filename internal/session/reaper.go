package session

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/logger"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/protocol"
)

// OfflineMarker is the slice of the persistence collaborator the reaper
// needs: mark a resolved client as no longer connected.
type OfflineMarker interface {
	MarkOffline(ctx context.Context, clientID string) error
}

// ReaperConfig bundles the sweep thresholds.
type ReaperConfig struct {
	Interval          time.Duration
	SerialGracePeriod time.Duration
	IdleTimeout       time.Duration
	LogDir            string
	LogRetentionDays  int
}

// Reaper periodically evicts sessions that never completed the handshake
// or have gone idle, and prunes old log files once a day.
type Reaper struct {
	cfg      ReaperConfig
	registry *Registry
	status   OfflineMarker

	lastCleanup time.Time
}

func NewReaper(cfg ReaperConfig, registry *Registry, status OfflineMarker) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Reaper{cfg: cfg, registry: registry, status: status}
}

// Run sweeps on a ticker until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(ctx, now)
		}
	}
}

// Sweep evaluates every registered session against the thresholds.
// Exported so tests can drive it without the ticker.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) {
	r.registry.EachTCP(func(s *TCP) {
		switch {
		case s.MustDisconnect():
			r.evict(ctx, s, s.LastError())
		case !s.Authenticated() && now.Sub(s.ConnectedAt) > r.cfg.SerialGracePeriod:
			r.evict(ctx, s, protocol.NewError(protocol.CodeInitFailed,
				"no client id within grace period"))
		case now.Sub(s.LastActivity()) > r.cfg.IdleTimeout:
			// idle eviction applies even to busy sessions; a stuck
			// exchange must not pin a dead socket forever
			r.evict(ctx, s, protocol.NewError(protocol.CodeClientNotResponding,
				"session idle past inactivity threshold"))
		}
	})

	r.registry.EachHTTP(func(s *HTTP) {
		if now.Sub(s.LastActivity()) > r.cfg.IdleTimeout {
			s.Close()
			r.registry.RemoveHTTP(s)
		}
	})

	if now.Sub(r.lastCleanup) >= 24*time.Hour {
		r.lastCleanup = now
		r.cleanupLogs(now)
	}
}

func (r *Reaper) evict(ctx context.Context, s *TCP, reason error) {
	clientID := s.GetClientID()

	s.FlagDisconnect(reason)
	s.Close(reason)
	r.registry.RemoveTCP(s)

	fields := map[string]any{"remote": s.Base.Key(), "client_id": clientID}
	if reason != nil {
		fields["reason"] = reason.Error()
	}
	logger.Info("session evicted", fields)

	if clientID != "" && r.status != nil {
		if err := r.status.MarkOffline(ctx, clientID); err != nil {
			logger.Error("failed to mark client offline", map[string]any{
				"client_id": clientID,
				"error":     err.Error(),
			})
		}
	}
}

// cleanupLogs deletes log files older than the retention window.
func (r *Reaper) cleanupLogs(now time.Time) {
	if r.cfg.LogDir == "" || r.cfg.LogRetentionDays <= 0 {
		return
	}

	cutoff := now.AddDate(0, 0, -r.cfg.LogRetentionDays)

	entries, err := os.ReadDir(r.cfg.LogDir)
	if err != nil {
		logger.Warn("log cleanup skipped", map[string]any{"error": err.Error()})
		return
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(r.cfg.LogDir, entry.Name())); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		logger.Info("old log files removed", map[string]any{"count": removed})
	}
}
