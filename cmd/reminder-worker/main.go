package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicbook/booking-engine/internal/booking"
	"github.com/clinicbook/booking-engine/internal/config"
	"github.com/clinicbook/booking-engine/internal/db"
	"github.com/clinicbook/booking-engine/internal/metrics"
	redisclient "github.com/clinicbook/booking-engine/internal/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running reminder worker in env=%s interval=%s lead=%s lookahead=%s",
		cfg.Env, cfg.WorkerInterval, cfg.ReminderLead, cfg.Lookahead)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL)
	m := metrics.NewEngineMetrics(nil)
	svc := booking.NewService(repo, locker, cfg, m)

	// Run once at startup
	runOnce(rootCtx, svc, cfg)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg)
		}
	}
}

// runOnce scans for due reminders and marks them sent. Actual delivery
// (email, SMS) is the notifier's job; this binary stands in for one by
// logging each reminder it would hand off.
func runOnce(ctx context.Context, svc *booking.Service, cfg config.Config) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()

	due, err := svc.DueReminders(runCtx, start, cfg.Lookahead)
	if err != nil {
		log.Printf("reminder scan error: %v", err)
		return
	}

	sent := 0
	for _, rem := range due {
		log.Printf("reminder due appointment_id=%s due_at=%s", rem.AppointmentID, rem.DueAt.Format(time.RFC3339))
		if _, err := svc.MarkSent(runCtx, rem.ID); err != nil {
			log.Printf("failed to mark reminder %s sent: %v", rem.ID, err)
			continue
		}
		sent++
	}

	log.Printf("reminder run complete due=%d sent=%d in %s", len(due), sent, time.Since(start))
}
