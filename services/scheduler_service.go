package services

import (
	"context"
	"log/slog"
	"time"

	"raffle-system/config"

	"github.com/robfig/cron/v3"
)

// SchedulerService runs the recurring maintenance jobs: the reservation expiry
// sweep, the inbound event purge and closing raffles whose draw date passed.
type SchedulerService struct {
	cron     *cron.Cron
	cfg      *config.Config
	reserve  *ReservationService
	dispatch *DispatchService
}

func NewSchedulerService(cfg *config.Config, reserve *ReservationService, dispatch *DispatchService) *SchedulerService {
	return &SchedulerService{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		cfg:      cfg,
		reserve:  reserve,
		dispatch: dispatch,
	}
}

func (s *SchedulerService) Start() error {
	if _, err := s.cron.AddFunc("@every "+s.cfg.SweepInterval.String(), s.runSweep); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 3 * * *", s.runPurge); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 10m", s.runRaffleClose); err != nil {
		return err
	}

	s.cron.Start()
	slog.Info("scheduler started", "sweep_interval", s.cfg.SweepInterval.String())
	return nil
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *SchedulerService) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

func (s *SchedulerService) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	released, expired, err := s.reserve.SweepExpired(ctx, time.Now())
	if err != nil {
		slog.Error("expiry sweep failed", "error", err)
		return
	}
	if released > 0 {
		slog.Info("expiry sweep", "tickets_released", released, "orders_expired", len(expired))
	}
}

func (s *SchedulerService) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.dispatch.PurgeDedupMarkers(ctx); err != nil {
		slog.Error("inbound event purge failed", "error", err)
	}
}

func (s *SchedulerService) runRaffleClose() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	closed, err := s.reserve.CloseDueRaffles(ctx, time.Now())
	if err != nil {
		slog.Error("raffle close check failed", "error", err)
		return
	}
	if closed > 0 {
		slog.Info("raffles closed for draw", "count", closed)
	}
}
