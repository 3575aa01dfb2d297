// Package server orchestrates all components: NATS client, fault registries,
// interceptor policies, dispatcher, optional fault log and the HTTP endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/morezero/callguard/internal/config"
	"github.com/morezero/callguard/pkg/bootstrap"
	"github.com/morezero/callguard/pkg/boundary"
	"github.com/morezero/callguard/pkg/commsutil"
	"github.com/morezero/callguard/pkg/db"
	"github.com/morezero/callguard/pkg/dispatcher"
	"github.com/morezero/callguard/pkg/events"
	"github.com/morezero/callguard/pkg/faults"
	"github.com/morezero/callguard/pkg/policies"
)

const logPrefix = "server:server"

// faultStore looks up recorded faults by correlation id.
type faultStore interface {
	Lookup(ctx context.Context, correlationID string) (*db.FaultRecord, error)
}

// Server is the callguard orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	disp       *dispatcher.Dispatcher
	faults     *faults.Policies
	faultLog   faultStore
	gatherer   prometheus.Gatherer
	// checks are run by /health; a nil error means healthy.
	checks map[string]func(ctx context.Context) error
}

// ParseLogLevel maps a LOG_LEVEL value to a slog level.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLogLevel(cfg.LogLevel)})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Starting callguard", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg, checks: make(map[string]func(ctx context.Context) error)}

	// Step 1: Fault registries and mapping overrides
	s.faults = faults.NewPolicies()
	mappingsCfg, err := bootstrap.LoadMappingsConfig(cfg.MappingsFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load mappings config: %w", logPrefix, err)
	}
	if _, err := bootstrap.Apply(s.faults, mappingsCfg); err != nil {
		slog.Warn(fmt.Sprintf("%s - Some mapping overrides were rejected: %v", logPrefix, err))
	}

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc
	s.checks["comms"] = func(context.Context) error {
		if !nc.IsConnected() {
			return fmt.Errorf("%s - not connected", logPrefix)
		}
		return nil
	}
	slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))

	// Step 3: Optional fault log
	var faultLogger boundary.Logger = boundary.SlogLogger{}
	if cfg.FaultLogEnabled {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			nc.Close()
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool
		s.checks["database"] = pool.Ping

		if cfg.RunMigrations {
			migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				pool.Close()
				nc.Close()
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				pool.Close()
				nc.Close()
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
		fl := db.NewFaultLog(pool)
		s.faultLog = fl
		faultLogger = boundary.MultiLogger{boundary.SlogLogger{}, fl}
	}

	// Step 4: Error boundary
	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if cfg.PublishFaultEvents {
		publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{GlobalSubject: cfg.FaultEventsSubject})
	}
	builder := boundary.NewBuilder(s.faults, cfg.FaultPolicy, cfg.Debug)
	bnd := boundary.New(boundary.NewParams{
		Builder:        builder,
		ProcessDefault: cfg.Format(),
		Logger:         faultLogger,
		Publisher:      publisher,
		Env:            cfg.Env,
	})

	// Step 5: Interceptor policies and dispatcher
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.gatherer = promReg
	interceptors, err := policies.Build(policies.BuildParams{
		Context:    ctx,
		Names:      cfg.Policies,
		Builder:    builder,
		Registerer: promReg,
		Namespace:  "callguard",
		RatePerSec: cfg.RatePerSecond,
		RateBurst:  cfg.RateBurst,
	})
	if err != nil {
		s.close()
		return fmt.Errorf("%s - failed to build policies: %w", logPrefix, err)
	}
	s.disp = dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Boundary:     bnd,
		Interceptors: interceptors,
		Endpoints:    cfg.EndpointFormats(),
	})
	if err := s.registerSystemOperations(); err != nil {
		s.close()
		return fmt.Errorf("%s - failed to register operations: %w", logPrefix, err)
	}

	// Step 6: Subscribe to the operations subject
	subject := cfg.OperationsSubject
	if subject == "" {
		subject = commsutil.SubjectOperations
	}
	sub, err := nc.Subscribe(subject, s.handleMessage(ctx))
	if err != nil {
		s.close()
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	opSub, err := nc.Subscribe(commsutil.SubjectOperations+".*", s.handleMessage(ctx))
	if err != nil {
		sub.Unsubscribe()
		s.close()
		return fmt.Errorf("%s - failed to subscribe to operation subjects: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s and %s.*", logPrefix, subject, commsutil.SubjectOperations))

	// Step 7: Start HTTP server
	httpAddr := cfg.HTTPAddr
	if httpAddr == "" {
		httpAddr = fmt.Sprintf(":%d", cfg.HTTPPort)
	}
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - callguard is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	sub.Unsubscribe()
	opSub.Unsubscribe()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HealthCheckTimeout)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)
	s.close()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func (s *Server) close() {
	commsutil.Drain(s.nc, 5*time.Second)
	if s.pool != nil {
		s.pool.Close()
	}
}
