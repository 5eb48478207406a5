package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/revsignal/revsignal/internal/identity"
	"github.com/revsignal/revsignal/internal/logger"
	"github.com/revsignal/revsignal/internal/mapping"
	"github.com/revsignal/revsignal/internal/pipeline"
	"github.com/revsignal/revsignal/internal/server"
	"github.com/revsignal/revsignal/internal/store"
	memorystore "github.com/revsignal/revsignal/internal/store/memory"
	postgresstore "github.com/revsignal/revsignal/internal/store/postgres"
	"github.com/revsignal/revsignal/internal/telemetry"
	"github.com/rs/zerolog"
)

type ServerCmd struct {
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"REVSIGNAL_LISTEN"`

	// Mapping configuration
	MappingFile string `help:"path to a mapping table YAML file, hot-reloaded on change (empty uses the embedded defaults)" default:"" env:"REVSIGNAL_MAPPING_FILE"`

	// Development and operational modes
	Tracing bool   `help:"enable tracing" default:"false" env:"REVSIGNAL_TRACING"`
	DevOrg  string `help:"seed an organization with this name on startup (memory store only)" default:"" env:"REVSIGNAL_DEV_ORG"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"REVSIGNAL_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"REVSIGNAL_POSTGRES_AUTO_MIGRATE"`

	// Connect Retry Configuration
	ConnectTimeout int32 `help:"total time in seconds to keep retrying the initial connection" default:"60"`
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "revsignal-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	// Mapping table: embedded defaults, or a hot-reloaded file
	var types pipeline.TypeMapper = mapping.Default()
	if c.MappingFile != "" {
		loader, err := mapping.NewLoader(c.MappingFile)
		if err != nil {
			return fmt.Errorf("failed to load mapping file: %w", err)
		}
		stopWatch, err := loader.Watch()
		if err != nil {
			return fmt.Errorf("failed to watch mapping file: %w", err)
		}
		defer stopWatch()
		types = loader
		log.Info().Str("path", c.MappingFile).Msg("Using mapping file with hot reload")
	}

	// Create stores based on store type
	var (
		accountStore      store.AccountStore
		contactStore      store.ContactStore
		signalStore       store.SignalStore
		organizationStore store.OrganizationStore
	)

	switch c.StoreType {
	case "postgres":
		pool, err := c.connectPostgres(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		accountStore = postgresstore.NewAccountStore(pool)
		contactStore = postgresstore.NewContactStore(pool)
		signalStore = postgresstore.NewSignalStore(pool)
		organizationStore = postgresstore.NewOrganizationStore(pool)
		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	default:
		accountStore = memorystore.NewAccountStore()
		contactStore = memorystore.NewContactStore()
		signalStore = memorystore.NewSignalStore()
		orgs := memorystore.NewOrganizationStore()
		if c.DevOrg != "" {
			org := orgs.Add(c.DevOrg)
			log.Info().Int64("org_id", org.ID).Str("name", org.Name).Msg("Seeded development organization")
		}
		organizationStore = orgs
		log.Info().Msg("Using in-memory stores")
	}

	p := pipeline.New(
		identity.NewResolver(accountStore, contactStore),
		signalStore,
		pipeline.NewHubSpotAdapter(types),
		pipeline.NewStripeAdapter(types),
		pipeline.NewCustomerIOAdapter(types),
		pipeline.NewPostHogAdapter(types),
	)

	handler := server.NewServer(p, signalStore, organizationStore).Handler(log)
	httpServer := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	return nil
}

// connectPostgres retries the initial connection with exponential backoff so
// the server survives starting before its database does.
func (c *ServerCmd) connectPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	log := zerolog.Ctx(ctx)

	cfg := &postgresstore.Config{
		ConnString:      c.PostgresStore.ConnString,
		MaxConns:        c.PostgresStore.MaxConns,
		MinConns:        c.PostgresStore.MinConns,
		MaxConnLifetime: time.Duration(c.PostgresStore.MaxConnLifetime) * time.Second,
		MaxConnIdleTime: time.Duration(c.PostgresStore.MaxConnIdleTime) * time.Second,
		AutoMigrate:     c.PostgresStore.AutoMigrate,
	}

	pool, err := backoff.Retry(ctx, func() (*pgxpool.Pool, error) {
		pool, err := postgresstore.NewPool(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Database not ready, retrying")
			return nil, err
		}
		return pool, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(time.Duration(c.PostgresStore.ConnectTimeout)*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}
