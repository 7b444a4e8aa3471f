package alerts

import (
	"context"
	"time"

	"github.com/careoclock/server/internal/metrics"
	"github.com/careoclock/server/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SweepResult is one alert created during a sweep
type SweepResult struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	AlertID  string `json:"alert_id"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
}

// Sweeper runs the alert rules across every active patient on a schedule
type Sweeper struct {
	store   *store.Store
	engine  *Engine
	logger  *zap.Logger
	limiter *rate.Limiter
}

// NewSweeper paces user evaluations at ratePerSec to keep a large patient
// roster from saturating the database
func NewSweeper(st *store.Store, engine *Engine, logger *zap.Logger, ratePerSec float64) *Sweeper {
	if ratePerSec <= 0 {
		ratePerSec = 20
	}
	return &Sweeper{
		store:   st,
		engine:  engine,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}
}

// Run evaluates every active patient and returns the alerts generated.
// One user's failure is logged and skipped; it never aborts the sweep.
func (s *Sweeper) Run(ctx context.Context) ([]SweepResult, error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	patients, err := s.store.ListActivePatients()
	if err != nil {
		return nil, err
	}

	s.logger.Info("alert sweep started", zap.Int("patients", len(patients)))

	results := []SweepResult{}
	for i := range patients {
		if err := s.limiter.Wait(ctx); err != nil {
			return results, err
		}

		created, err := s.engine.EvaluateUser(ctx, patients[i].ID)
		if err != nil {
			metrics.SweepUsersFailed.Inc()
			s.logger.Error("sweep evaluation failed",
				zap.String("user_id", patients[i].ID),
				zap.Error(err))
			continue
		}

		for _, alert := range created {
			results = append(results, SweepResult{
				UserID:   patients[i].ID,
				UserName: patients[i].Name,
				AlertID:  alert.ID,
				Type:     alert.Type,
				Severity: alert.Severity,
			})
		}
	}

	s.logger.Info("alert sweep finished",
		zap.Int("alerts_generated", len(results)),
		zap.Duration("duration", time.Since(start)))
	return results, nil
}
