package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-team-slim/internal/config"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/cache"
	"github.com/tendant/simple-team-slim/pkg/repository"
	"github.com/tendant/simple-team-slim/teamkit"
)

func execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "simple-team",
		Short:         "Role-based team collaboration service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newReconcileCmd(),
		newTokenCmd(),
	)
	return root
}

// env is the loaded configuration plus a logger named after the service.
type env struct {
	cfg *config.Config
	log *logger.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(logger.Options{Service: "simple-team", Env: cfg.AppEnv, Level: cfg.LogLevel})
	return &env{cfg: cfg, log: log}, nil
}

func (e *env) openDB() (*sql.DB, error) {
	db, err := repository.NewDB(repository.Config{
		Host:     e.cfg.DBHost,
		Port:     e.cfg.DBPort,
		User:     e.cfg.DBUser,
		Password: e.cfg.DBPassword,
		DBName:   e.cfg.DBName,
		SSLMode:  e.cfg.DBSSLMode,
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("connected to database", "host", e.cfg.DBHost, "name", e.cfg.DBName)
	return db, nil
}

// buildKit opens the configured backing services and assembles a Kit. The
// returned cleanup closes what buildKit opened.
func (e *env) buildKit(ctx context.Context) (*teamkit.Kit, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	kcfg := teamkit.Config{
		JWTSecret:          e.cfg.JWTSecret,
		JWTIssuer:          e.cfg.JWTIssuer,
		TokenTTL:           e.cfg.TokenTTL,
		PrincipalCacheTTL:  e.cfg.PrincipalCacheTTL,
		ActivityBufferSize: e.cfg.ActivityBufferSize,
		MaxRetries:         e.cfg.MutationMaxRetries,
		DeletePolicy:       e.cfg.TeamDeletePolicy,
		RateLimit:          e.cfg.RateLimit,
		SecurityHeaders:    e.cfg.SecurityHeaders,
		MaxRequestBodySize: e.cfg.MaxRequestBodySize,
		Logger:             e.log,
	}

	if e.cfg.StoreDriver == "postgres" {
		db, err := e.openDB()
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { db.Close() })
		if e.cfg.AutoMigrate {
			if err := repository.RunMigrations(db); err != nil {
				return nil, cleanup, fmt.Errorf("failed to run migrations: %w", err)
			}
			e.log.Info("migrations applied")
		}
		kcfg.DB = db
	} else {
		e.log.Warn("using in-memory store, data is lost on exit")
	}

	if e.cfg.HasRedis() {
		rdb, err := cache.NewClient(ctx, e.cfg.RedisURL)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { rdb.Close() })
		kcfg.Redis = rdb
		e.log.Info("principal cache enabled", "ttl", e.cfg.PrincipalCacheTTL)
	}

	if e.cfg.HasKafka() {
		kcfg.Kafka = &teamkit.KafkaConfig{
			Brokers: e.cfg.KafkaBrokers,
			Topic:   e.cfg.KafkaActivityTopic,
			GroupID: e.cfg.KafkaGroupID,
		}
		e.log.Info("activity transport: kafka", "brokers", e.cfg.KafkaBrokers, "topic", e.cfg.KafkaActivityTopic)
	}

	kit, err := teamkit.New(kcfg)
	if err != nil {
		return nil, cleanup, err
	}
	return kit, cleanup, nil
}
