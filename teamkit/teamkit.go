// Package teamkit embeds the team collaboration core in another Go service.
//
// Setup:
//
//  1. Run migrations (simple-team migrate) or pass a nil DB for an
//     in-memory store
//  2. Create a Kit and mount its router
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", "postgres://localhost/myapp?sslmode=disable")
//
//	kit, err := teamkit.New(teamkit.Config{
//	    DB:        db,
//	    JWTSecret: "your-secret-key-at-least-32-chars",
//	})
//	if err != nil {
//	    log.Fatal(err) // Will fail if migrations haven't been run
//	}
//	defer kit.Close(context.Background())
//
//	r := chi.NewRouter()
//	r.Mount("/", kit.Router())
//	http.ListenAndServe(":8080", r)
//
// With Kafka and Redis:
//
//	kit, err := teamkit.New(teamkit.Config{
//	    DB:        db,
//	    JWTSecret: "your-secret-key-at-least-32-chars",
//	    Redis:     redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    Kafka: &teamkit.KafkaConfig{
//	        Brokers: []string{"localhost:9092"},
//	        Topic:   "team-activities",
//	        GroupID: "team-activity-projector",
//	    },
//	})
//	go kit.RunProjector(ctx)
package teamkit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-team-slim/internal/config"
	apphttp "github.com/tendant/simple-team-slim/internal/http"
	"github.com/tendant/simple-team-slim/internal/logger"
	"github.com/tendant/simple-team-slim/pkg/activity"
	"github.com/tendant/simple-team-slim/pkg/auth"
	"github.com/tendant/simple-team-slim/pkg/cache"
	"github.com/tendant/simple-team-slim/pkg/membership"
	"github.com/tendant/simple-team-slim/pkg/repository"
	"github.com/tendant/simple-team-slim/pkg/users"
	"github.com/tendant/simple-team-slim/pkg/work"
)

// Config holds the configuration for a Kit.
type Config struct {
	// DB is the Postgres connection. When nil every store is kept in memory.
	DB *sql.DB

	// JWTSecret is the secret key for verifying bearer tokens (required, min 32 chars).
	JWTSecret string

	// JWTIssuer is the expected issuer claim (default: "simple-team").
	JWTIssuer string

	// TokenTTL is the lifetime of tokens minted by Tokens() (default: 15 minutes).
	TokenTTL time.Duration

	// Redis enables the principal cache (optional).
	Redis redis.Cmdable

	// PrincipalCacheTTL is how long a cached principal lives (default: 1 minute).
	PrincipalCacheTTL time.Duration

	// Kafka routes activities through a topic instead of writing the ledger
	// in process (optional).
	Kafka *KafkaConfig

	// ActivityBufferSize bounds the queue of undelivered activities (default: 256).
	ActivityBufferSize int

	// MaxRetries bounds compare-and-swap retries of team writes (default: 3).
	MaxRetries int

	// DeletePolicy is "orphan", "cascade" or "reject" (default: "orphan").
	DeletePolicy string

	// RateLimit and SecurityHeaders configure the router middleware.
	// Zero values disable both.
	RateLimit       config.RateLimitConfig
	SecurityHeaders config.SecurityHeadersConfig

	// MaxRequestBodySize caps request bodies in bytes (default: 1 MiB).
	MaxRequestBodySize int64

	// Logger is the structured logger (default: a no-op logger).
	Logger *logger.Logger
}

// KafkaConfig holds the activity topic settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Kit is an assembled team collaboration core.
type Kit struct {
	config     Config
	stores     repository.Stores
	tokens     *auth.TokenService
	loader     *cache.Loader
	recorder   *activity.Recorder
	publisher  *activity.Publisher
	projector  *activity.Projector
	manager    *membership.Manager
	reconciler *membership.Reconciler
	users      *users.Service
	tasks      *work.TaskService
	meetings   *work.MeetingService
	files      *work.FileService
	reporter   *activity.Reporter
}

// New creates a Kit with the given configuration.
// Returns an error if a DB is given and required tables don't exist.
func New(cfg Config) (*Kit, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	policy, err := membership.ParseDeletePolicy(cfg.DeletePolicy)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.TokenTTL,
	})
	if err != nil {
		return nil, err
	}

	// Initialize stores
	var stores repository.Stores
	if cfg.DB != nil {
		if err := repository.ValidateSchema(cfg.DB); err != nil {
			return nil, fmt.Errorf("schema validation failed: %w (run migrations first)", err)
		}
		stores = repository.NewPostgresStores(cfg.DB)
	} else {
		stores = repository.NewMemoryStore().Stores()
	}

	var principals *cache.PrincipalCache
	if cfg.Redis != nil {
		principals = cache.NewPrincipalCache(cfg.Redis, cfg.PrincipalCacheTTL)
	}
	loader := cache.NewLoader(stores.Users, principals, cfg.Logger)

	// Activities go to Kafka when configured and straight to the ledger otherwise.
	k := &Kit{config: cfg, stores: stores, tokens: tokens, loader: loader}
	var sink activity.Sink = stores.Activities
	if cfg.Kafka != nil {
		k.publisher = activity.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		k.projector = activity.NewProjector(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, stores.Activities, cfg.Logger)
		sink = k.publisher
	}
	k.recorder = activity.NewRecorder(sink, cfg.Logger, activity.RecorderConfig{BufferSize: cfg.ActivityBufferSize})

	// Initialize services
	k.manager = membership.NewManager(membership.Config{
		MaxRetries:   cfg.MaxRetries,
		DeletePolicy: policy,
	}, stores, k.recorder, loader, cfg.Logger)
	k.reconciler = membership.NewReconciler(stores, cfg.Logger)
	k.users = users.NewService(stores.Users, k.manager, k.recorder, loader, cfg.Logger)
	k.tasks = work.NewTaskService(stores, k.recorder)
	k.meetings = work.NewMeetingService(stores, k.recorder)
	k.files = work.NewFileService(stores, k.recorder)
	k.reporter = activity.NewReporter(stores.Teams, stores.Activities)

	return k, nil
}

// Router returns the HTTP API with every route under /v1 plus GET /health.
// Mount this on your main router:
//
//	r := chi.NewRouter()
//	r.Mount("/", kit.Router())
func (k *Kit) Router() http.Handler {
	return apphttp.NewRouter(apphttp.RouterConfig{
		Logger:             k.config.Logger,
		Tokens:             k.tokens,
		Principals:         k.loader,
		Manager:            k.manager,
		Users:              k.users,
		Tasks:              k.tasks,
		Meetings:           k.meetings,
		Files:              k.files,
		Reporter:           k.reporter,
		RateLimitConfig:    k.config.RateLimit,
		SecurityHeaders:    k.config.SecurityHeaders,
		MaxRequestBodySize: k.config.MaxRequestBodySize,
	})
}

// Manager returns the membership manager for direct use.
func (k *Kit) Manager() *membership.Manager {
	return k.manager
}

// Users returns the user account service.
func (k *Kit) Users() *users.Service {
	return k.users
}

// Reconciler returns the back-reference reconciler.
func (k *Kit) Reconciler() *membership.Reconciler {
	return k.reconciler
}

// Tokens returns the token service, for minting tokens in tooling and tests.
func (k *Kit) Tokens() *auth.TokenService {
	return k.tokens
}

// Stores returns the underlying stores.
func (k *Kit) Stores() repository.Stores {
	return k.stores
}

// RunProjector consumes the activity topic into the ledger until ctx is
// done. It returns immediately when Kafka is not configured.
func (k *Kit) RunProjector(ctx context.Context) error {
	if k.projector == nil {
		return nil
	}
	return k.projector.Run(ctx)
}

// Close flushes queued activities and releases Kafka clients. The DB and
// Redis client belong to the caller and stay open.
func (k *Kit) Close(ctx context.Context) error {
	var errs []error
	if err := k.recorder.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush activities: %w", err))
	}
	if k.publisher != nil {
		if err := k.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close activity publisher: %w", err))
		}
	}
	if k.projector != nil {
		if err := k.projector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close activity projector: %w", err))
		}
	}
	return errors.Join(errs...)
}

func validateConfig(cfg *Config) error {
	if len(cfg.JWTSecret) < 32 {
		return errors.New("teamkit: JWTSecret must be at least 32 characters")
	}
	if cfg.Kafka != nil && (len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "") {
		return errors.New("teamkit: Kafka requires Brokers and Topic")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.PrincipalCacheTTL == 0 {
		cfg.PrincipalCacheTTL = cache.DefaultTTL
	}
	if cfg.Kafka != nil && cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "team-activity-projector"
	}
	if cfg.DeletePolicy == "" {
		cfg.DeletePolicy = string(membership.DeleteOrphan)
	}
	if cfg.MaxRequestBodySize == 0 {
		cfg.MaxRequestBodySize = 1 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
}
