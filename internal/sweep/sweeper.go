package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/logger"
	"github.com/argus-sec/argus/internal/services"
)

// Sweeper drives the periodic background analyses: abuse and DDoS detection
// once per minute and event pruning once per hour. Each sweep recomputes from
// the store; the sweeper itself holds no detection state.
type Sweeper struct {
	cron      *cron.Cron
	events    *services.EventService
	abuse     *services.AbuseService
	ddos      *services.DDoSService
	responder *services.ResponseService
	limits    config.Thresholds
}

// New builds a Sweeper over the already-wired services.
func New(events *services.EventService, abuse *services.AbuseService, ddos *services.DDoSService, responder *services.ResponseService, limits config.Thresholds) *Sweeper {
	return &Sweeper{
		cron:      cron.New(),
		events:    events,
		abuse:     abuse,
		ddos:      ddos,
		responder: responder,
		limits:    limits,
	}
}

// Start schedules the sweeps and begins running them.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc("@every 1m", s.RunDetections); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 1h", s.RunHousekeeping); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunDetections executes one abuse + DDoS pass. Exported so operational
// tooling can trigger an immediate sweep.
func (s *Sweeper) RunDetections() {
	start := time.Now()

	if err := s.abuse.Sweep(func(report services.AbuseReport) {
		if err := s.responder.RespondToReport(report); err != nil {
			logger.WithComponent("sweep").Warnf("abuse escalation for %s: %v", report.IPAddress, err)
		}
	}); err != nil {
		logger.WithComponent("sweep").Warnf("abuse sweep: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.ddos.Sweep(ctx, func(ip, reason, message string) {
		if err := s.responder.Respond(ip, reason, message); err != nil {
			logger.WithComponent("sweep").Warnf("ddos escalation for %s: %v", ip, err)
		}
	})

	logger.WithComponent("sweep").Debugf("detection sweep finished in %s", time.Since(start))
}

// RunHousekeeping prunes events past the retention window.
func (s *Sweeper) RunHousekeeping() {
	cutoff := time.Now().Add(-time.Duration(s.limits.RetentionHours) * time.Hour)
	removed, err := s.events.PruneBefore(cutoff)
	if err != nil {
		logger.WithComponent("sweep").Warnf("prune events: %v", err)
		return
	}
	if removed > 0 {
		logger.WithComponent("sweep").WithField("removed", removed).Info("pruned expired events")
	}
}
