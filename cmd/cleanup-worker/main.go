package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medtrack/clinic-scheduler/internal/availability"
	"github.com/medtrack/clinic-scheduler/internal/clinic"
	"github.com/medtrack/clinic-scheduler/internal/config"
	"github.com/medtrack/clinic-scheduler/internal/db"
	redisclient "github.com/medtrack/clinic-scheduler/internal/redis"
)

const sweepLockName = "availability-sweep"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "cleanup-worker").Logger()
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.SweepInterval).Msg("starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	users := clinic.NewPgRepository(pgPool)
	svc := availability.NewService(availability.NewPgRepository(pgPool), users, log)
	mutex := redisclient.NewRedisMutex(rdb, cfg.SweepLockTTL)

	// First run waits for the next local midnight so the daily cadence
	// lines up with calendar dates.
	firstRun := time.NewTimer(untilNextMidnight(time.Now()))
	defer firstRun.Stop()

	log.Info().Time("first_run", time.Now().Add(untilNextMidnight(time.Now()))).Msg("sweep scheduled")

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown before first sweep")
		return
	case <-firstRun.C:
		runOnce(rootCtx, log, svc, mutex)
	}

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping cleanup worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, log, svc, mutex)
		}
	}
}

func runOnce(ctx context.Context, log zerolog.Logger, svc *availability.Service, mutex redisclient.Mutex) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	start := time.Now()
	err := mutex.WithLock(runCtx, sweepLockName, func(lockCtx context.Context) error {
		_, err := svc.DeleteExpired(lockCtx)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			log.Info().Msg("another replica holds the sweep lock, skipping run")
			return
		}
		log.Error().Err(err).Msg("sweep run error")
		return
	}
	log.Info().Dur("took", time.Since(start)).Msg("sweep run complete")
}

func untilNextMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return next.Sub(now)
}
