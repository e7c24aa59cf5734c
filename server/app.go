package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sprout/config"
	"sprout/internal/alerts"
	"sprout/internal/commandq"
	"sprout/internal/db"
	"sprout/internal/events"
	"sprout/internal/health"
	"sprout/internal/logs"
	"sprout/internal/middleware"
	"sprout/internal/models"
	"sprout/internal/presence"
	"sprout/internal/repo"
	"sprout/internal/telemetry"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type App struct {
	cfg        *config.Config
	Router     *mux.Router
	httpServer *http.Server

	db      *gorm.DB
	bus     events.Publisher
	sweeper *commandq.Sweeper

	ctx    context.Context
	cancel context.CancelFunc
}

func (a *App) Initialize(cfg *config.Config) {
	a.cfg = cfg

	// 1) logging
	logs.Init(logs.Options{
		Level:  a.cfg.Logging.Level,
		Format: a.cfg.Logging.Format,
		File:   a.cfg.Logging.File,
	})

	// 2) database
	if drv := a.cfg.Database.Driver; drv != "" {
		d, err := db.Open(drv, a.cfg.Database.DSN)
		if err != nil {
			log.Fatalf("db open failed: %v", err)
		}
		a.db = d
	}
	if a.db != nil {
		if err := a.db.AutoMigrate(
			&models.Device{},
			&models.Zone{},
			&models.ApiCredential{},
			&models.Command{},
			&models.CommandAudit{},
			&models.SensorReading{},
			&models.FreshnessCache{},
			&models.Alert{},
		); err != nil {
			log.Fatalf("db migrate failed: %v", err)
		}
		if err := db.MigrateCommandClaimIndex(a.db); err != nil {
			logs.Logger.Warnf("claim index migration: %v", err)
		}
		if err := db.MigrateFreshnessUniqueIndex(a.db); err != nil {
			logs.Logger.Warnf("freshness index migration: %v", err)
		}
	}

	// 3) event bus
	a.bus = events.Nop{}
	if a.cfg.MQTT.Enabled {
		pub, err := events.NewMQTTPublisher(events.MQTTConfig{
			Broker:      a.cfg.MQTT.Broker,
			ClientID:    a.cfg.MQTT.ClientID,
			Username:    a.cfg.MQTT.Username,
			Password:    a.cfg.MQTT.Password,
			TopicPrefix: a.cfg.MQTT.TopicPrefix,
		})
		if err != nil {
			logs.Logger.Warnf("mqtt disabled: %v", err)
		} else {
			a.bus = pub
		}
	}

	// 4) router + middleware
	a.Router = mux.NewRouter()
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(middleware.LoggerMW)

	if a.db != nil {
		health.RegisterRoutesWithDB(a.Router, a.db)
	} else {
		health.RegisterRoutes(a.Router)
	}

	// 5) gateway services (DB required for everything below)
	if a.db != nil {
		devices := repo.NewDeviceStore(a.db)
		zones := repo.NewZoneStore(a.db)
		creds := repo.NewCredentialStore(a.db)

		pc := a.cfg.Gateway.Presence
		tracker := presence.NewTracker(presence.Thresholds{
			Live:   time.Duration(pc.LiveWithinSec) * time.Second,
			Recent: time.Duration(pc.RecentWithinSec) * time.Second,
			Stale:  time.Duration(pc.StaleWithinSec) * time.Second,
		})

		ac := a.cfg.Gateway.Alerts
		evaluator := alerts.NewEvaluator(alerts.Thresholds{
			MoistureCriticalBelow: ac.MoistureCriticalBelow,
			TemperatureHighAbove:  ac.TemperatureHighAbove,
			HumidityLowBelow:      ac.HumidityLowBelow,
		})
		alertStore := alerts.NewStore(a.db, a.bus)

		cmdRepo := commandq.NewRepo(a.db)
		cmdSvc := commandq.NewService(cmdRepo, devices, creds, tracker, a.bus, a.cfg.Gateway)
		a.sweeper = commandq.NewSweeper(cmdSvc, time.Duration(a.cfg.Gateway.SweepIntervalSec)*time.Second)

		telStore := telemetry.NewStore(a.db)
		telSvc := telemetry.NewService(a.db, telStore, devices, zones, creds, tracker, evaluator, alertStore)

		commandq.NewHTTP(cmdSvc).RegisterRoutes(a.Router)
		telemetry.NewHTTP(telSvc, telStore, zones).RegisterRoutes(a.Router)
		presence.NewHTTP(tracker, devices, creds).RegisterRoutes(a.Router)
		alerts.NewHTTP(alertStore).RegisterRoutes(a.Router)
	}

	a.Router.Walk(func(rt *mux.Route, r *mux.Router, ancestors []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		log.Printf("route: %-6v %s", methods, path)
		return nil
	})
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return ErrNotInitialized
	}
	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigs; a.cancel() }()

	if a.sweeper != nil {
		go a.sweeper.Run(a.ctx)
	}

	a.httpServer = &http.Server{
		Addr:         bind,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-a.ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.httpServer.Shutdown(ctx)
	a.bus.Close()
	return nil
}

var ErrNotInitialized = &initError{"server not initialized (call Initialize(cfg) first)"}

type initError struct{ s string }

func (e *initError) Error() string { return e.s }
