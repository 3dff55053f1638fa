package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/show-booking-engine/internal/booking"
	"github.com/iliyamo/show-booking-engine/internal/cache"
	"github.com/iliyamo/show-booking-engine/internal/config"
	"github.com/iliyamo/show-booking-engine/internal/database"
	"github.com/iliyamo/show-booking-engine/internal/handler"
	"github.com/iliyamo/show-booking-engine/internal/monitoring"
	"github.com/iliyamo/show-booking-engine/internal/notify"
	"github.com/iliyamo/show-booking-engine/internal/payment"
	"github.com/iliyamo/show-booking-engine/internal/queue"
	"github.com/iliyamo/show-booking-engine/internal/repository"
	"github.com/iliyamo/show-booking-engine/internal/router"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	rlCfg := config.LoadRateLimitConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	store := repository.NewStore(db)

	// Redis is the reservation cache. When it is unreachable the server
	// still starts, with the reservation endpoints disabled and bookings
	// running database-only.
	rdb := config.NewRedisClient()
	degraded := rdb == nil
	if degraded {
		log.Printf("redis unavailable: reservation endpoints disabled, bookings run database-only")
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.AMQPURL != "" {
		notifier = notify.NewAMQPNotifier(cfg.AMQPURL)
		go func() {
			if err := queue.StartConsumer(cfg.AMQPURL); err != nil {
				log.Printf("sales-consumer: %v", err)
			}
		}()
	}

	monitor := monitoring.New()

	var (
		ledger  *cache.CapacityLedger
		holds   *cache.SeatHoldTable
		gateway payment.Gateway
	)
	if !degraded {
		ledger = cache.NewCapacityLedger(rdb)
		if cfg.LockTTL > 0 {
			ledger.LockTTL = cfg.LockTTL
		}
		if cfg.ReservationTTL > 0 {
			ledger.ReservationTTL = cfg.ReservationTTL
		}
		holds = cache.NewSeatHoldTable(rdb)
		if cfg.HoldTTL > 0 {
			holds.HoldTTL = cfg.HoldTTL
		}
		gateway = payment.NewSimulator(rdb)
	} else {
		gateway = payment.NewOfflineSimulator()
	}

	orchestrator := booking.NewOrchestrator(store, ledger, holds, gateway, notifier, monitor)

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	if !degraded {
		resHandler := handler.NewReservationHandler(ledger, holds, store.Shows(), notifier, monitor)
		router.RegisterReservations(e, resHandler, cfg.JWTSecret, rlCfg, rdb)
	}
	bookHandler := handler.NewBookingHandler(orchestrator, degraded)
	router.RegisterBooking(e, bookHandler, cfg.JWTSecret, rlCfg, rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, degraded=%v)", addr, cfg.Env, degraded)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
