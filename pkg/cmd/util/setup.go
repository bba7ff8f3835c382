// Package util contains the startup steps shared by the commands.
package util

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/pgx-contrib/pgxtrace"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/mpapenbr/trackside/log"
	"github.com/mpapenbr/trackside/pkg/config"
	"github.com/mpapenbr/trackside/pkg/db/postgres"
	"github.com/mpapenbr/trackside/pkg/model"
	"github.com/mpapenbr/trackside/pkg/processing/lap"
	"github.com/mpapenbr/trackside/pkg/track"
	"github.com/mpapenbr/trackside/pkg/utils"
)

func ParseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger replaces the default logger according to the log flags.
// The returned logger is meant for the sql tracer.
func SetupLogger() (*log.Logger, error) {
	opts := []log.Option{log.WithCaller(true), log.AddCallerSkip(1)}
	if config.LogConfig != "" {
		filter, err := log.FilterRules(config.LogConfig)
		if err != nil {
			return nil, fmt.Errorf("invalid log config %q: %w", config.LogConfig, err)
		}
		opts = append(opts, filter)
	}
	var logger, sqlLogger *log.Logger
	switch config.LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			ParseLogLevel(config.LogLevel, log.InfoLevel),
			opts...)
		sqlLogger = log.New(
			os.Stderr,
			ParseLogLevel(config.SQLLogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	default:
		logger = log.DevLogger(
			os.Stderr,
			ParseLogLevel(config.LogLevel, log.DebugLevel),
			opts...)
		sqlLogger = log.DevLogger(
			os.Stderr,
			ParseLogLevel(config.SQLLogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}
	log.ResetDefault(logger)
	return sqlLogger, nil
}

// StartTelemetry sets up the exporters and runtime metrics if telemetry is
// enabled. The result is nil otherwise or if the setup failed.
func StartTelemetry(ctx context.Context) *config.Telemetry {
	if !config.EnableTelemetry {
		return nil
	}
	log.Info("Enabling telemetry")
	telemetry, err := config.SetupTelemetry(ctx)
	if err != nil {
		log.Warn("Could not setup telemetry", log.ErrorField(err))
		telemetry = nil
	}
	err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
	if err != nil {
		log.Warn("Could not start runtime metrics", log.ErrorField(err))
	}
	return telemetry
}

// NewPgTracer logs statements and adds spans if telemetry is enabled.
func NewPgTracer(sqlLogger *log.Logger) pgx.QueryTracer {
	pgTracer := pgxtrace.CompositeQueryTracer{
		postgres.NewMyTracer(sqlLogger, log.DebugLevel),
	}
	if config.EnableTelemetry {
		pgTracer = append(pgTracer, postgres.NewOtlpTracer())
	}
	return pgTracer
}

// ConnectDB connects to config.DB. The program terminates if this fails.
func ConnectDB(sqlLogger *log.Logger) *pgxpool.Pool {
	return postgres.InitWithUrl(config.DB, postgres.WithTracer(NewPgTracer(sqlLogger)))
}

// ConnectNats connects to config.NatsURL and keeps reconnecting.
func ConnectNats() (*nats.Conn, error) {
	conn, err := nats.Connect(config.NatsURL,
		nats.Name("trackside"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", log.ErrorField(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", log.String("url", c.ConnectedUrl()))
		}))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", config.NatsURL, err)
	}
	return conn, nil
}

var ErrNoCatalog = errors.New("no catalog file given")

type RequiredServices struct {
	DB   bool
	Nats bool
}

// WaitForRequiredServices blocks until the services are reachable.
// The program terminates after config.WaitForServices.
func WaitForRequiredServices(req RequiredServices) {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}

	wg := sync.WaitGroup{}
	checkTCP := func(addr string) {
		defer wg.Done()
		if err := utils.WaitForTCP(addr, timeout); err != nil {
			log.Fatal("required services not ready", log.ErrorField(err))
		}
	}

	if addr := utils.ExtractFromDBURL(config.DB); req.DB && addr != "" {
		wg.Add(1)
		go checkTCP(addr)
	}
	if addr := utils.ExtractFromNatsURL(config.NatsURL); req.Nats && addr != "" {
		wg.Add(1)
		go checkTCP(addr)
	}
	log.Debug("Waiting for connection checks to return")
	wg.Wait()
	log.Debug("Required services are available")
}

// LoadCatalog reads and validates the catalog file.
func LoadCatalog() (*track.Catalog, error) {
	if config.CatalogFile == "" {
		return nil, ErrNoCatalog
	}
	tracks, err := config.LoadCatalogFile(config.CatalogFile)
	if err != nil {
		return nil, err
	}
	return BuildCatalog(tracks)
}

func BuildCatalog(tracks []model.TrackGeometry) (*track.Catalog, error) {
	return track.Load(tracks, track.WithCatalogLogger(log.Default().Named("catalog")))
}

// EngineOptions returns the engine settings of the command line after a
// sanity check.
func EngineOptions() (config.Engine, error) {
	e := config.EngineConfig
	if e.MinValidDistanceM < lap.MinValidDistanceFloorM {
		return e, fmt.Errorf("min valid distance must be at least %vm, got %v",
			lap.MinValidDistanceFloorM, e.MinValidDistanceM)
	}
	if e.AcceptanceThreshold <= 0 || e.AcceptanceThreshold > 1 {
		return e, fmt.Errorf("acceptance threshold must be in (0,1], got %v", e.AcceptanceThreshold)
	}
	if e.BucketSizeM <= 0 {
		return e, fmt.Errorf("bucket size must be positive, got %v", e.BucketSizeM)
	}
	return e, nil
}
