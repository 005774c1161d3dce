package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/config"
	entityrepo "github.com/Ramsey-B/clover/internal/repositories/entity"
	issuerepo "github.com/Ramsey-B/clover/internal/repositories/issue"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/domainmatch"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/extractor"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/intake"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/linking"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/routes/domain"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/issue"
	"github.com/Ramsey-B/clover/pkg/routes/merge"
	"github.com/Ramsey-B/clover/pkg/routes/resolution"
	"github.com/Ramsey-B/clover/pkg/services"
	"github.com/Ramsey-B/clover/pkg/session"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/store"
)

const storeDriverMemory = "memory"

// app holds every long-lived component. Fields are filled in by startup dependencies.
type app struct {
	cfg    *config.Config
	logger ectologger.Logger
	health *health.Checker
	server *http.Server

	db       *database.DatabaseInstance
	entities store.EntityStore
	issues   store.IssueStore
	redis    *redis.Client
	graph    *graph.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	return &app{
		cfg:    cfg,
		logger: logger,
		health: health.NewChecker(cfg.Version),
	}
}

// register declares the boot graph: infrastructure first, then the services and the
// issue consumer on top of it
func (a *app) register(boot *startup.Startup) {
	boot.AddDependency(startup.Func{Name: "store", StartFunc: a.startStore, StopFunc: a.stopStore})
	boot.AddDependency(startup.Func{Name: "redis", StartFunc: a.startRedis, StopFunc: a.stopRedis})
	boot.AddDependency(startup.Func{Name: "graph", StartFunc: a.startGraph, StopFunc: a.stopGraph})
	boot.AddDependency(startup.Func{Name: "kafka-producer", StartFunc: a.startProducer, StopFunc: a.stopProducer})
	boot.AddDependency(startup.Func{
		Name:      "http",
		Parents:   []string{"store", "redis", "graph", "kafka-producer"},
		StartFunc: a.startServices,
	})
	boot.AddDependency(startup.Func{
		Name:      "issue-consumer",
		Parents:   []string{"store"},
		StartFunc: a.startConsumer,
		StopFunc:  a.stopConsumer,
	})
}

func (a *app) startStore(ctx context.Context) error {
	if a.cfg.StoreDriver == storeDriverMemory {
		mem := store.NewMemory()
		a.entities, a.issues = mem, mem
		a.logger.WithContext(ctx).Warn("Using the in-memory entity store; data is lost on restart")
		return nil
	}

	db, err := database.Open(ctx, database.Config{
		Driver:          a.cfg.DatabaseDriver,
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		User:            a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(a.logger, database.MigrationConfig{
		FolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:    a.cfg.DatabaseMigrationVersion,
		Force:      a.cfg.DatabaseMigrationForce,
	})
	if err := migrations.Migrate(db, a.cfg.DatabaseName); err != nil {
		_ = db.Close()
		return err
	}

	issues := issuerepo.NewRepository(db, a.logger)
	a.db = db
	a.issues = issues
	a.entities = entityrepo.NewRepository(db, a.logger, issues)
	a.health.AddCheck("database", db.PingContext, false)
	return nil
}

func (a *app) stopStore(context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *app) startRedis(ctx context.Context) error {
	if a.cfg.RedisHost == "" {
		return nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.health.AddCheck("redis", client.Ping, false)
	return nil
}

func (a *app) stopRedis(context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func (a *app) startGraph(ctx context.Context) error {
	if a.cfg.GraphDBHost == "" {
		return nil
	}

	client, err := graph.NewClient(graph.Config{
		Host:     a.cfg.GraphDBHost,
		Port:     a.cfg.GraphDBPort,
		Username: a.cfg.GraphDBUser,
		Password: a.cfg.GraphDBPassword,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("graph database unreachable: %w", err)
	}
	a.graph = client
	a.health.AddCheck("graph", client.VerifyConnectivity, true)
	return nil
}

func (a *app) stopGraph(ctx context.Context) error {
	if a.graph == nil {
		return nil
	}
	return a.graph.Close(ctx)
}

func (a *app) brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(a.cfg.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func (a *app) startProducer(context.Context) error {
	brokers := a.brokers()
	if len(brokers) == 0 {
		return nil
	}

	a.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      brokers,
		Topic:        a.cfg.KafkaEventTopic,
		BatchSize:    a.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: a.cfg.KafkaRequiredAcks,
	}, a.logger)
	return nil
}

func (a *app) stopProducer(context.Context) error {
	if a.producer == nil {
		return nil
	}
	return a.producer.Close()
}

func (a *app) startConsumer(ctx context.Context) error {
	brokers := a.brokers()
	if len(brokers) == 0 {
		return nil
	}

	ext, err := extractor.New(extractor.Paths{
		Kind:         a.cfg.IssueKindPath,
		IssueType:    a.cfg.IssueTypePath,
		Email:        a.cfg.IssueEmailPath,
		Name:         a.cfg.IssueNamePath,
		Phone:        a.cfg.IssuePhonePath,
		Domain:       a.cfg.IssueDomainPath,
		SampleEmails: a.cfg.IssueSamplePath,
	})
	if err != nil {
		return err
	}

	a.consumer = kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       brokers,
		Topic:         a.cfg.KafkaIssueTopic,
		ConsumerGroup: a.cfg.KafkaConsumerGroup,
	}, a.logger, intake.NewHandler(ext, a.issues, a.logger))

	// the consumer outlives the boot context
	return a.consumer.Start(context.WithoutCancel(ctx))
}

func (a *app) stopConsumer(context.Context) error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Stop()
}

// startServices builds the resolution core over whatever infrastructure started and
// mounts it on a new HTTP server
func (a *app) startServices(ctx context.Context) error {
	recorder := metrics.Recorder{}

	listeners := []linking.Listener{recorder}
	if a.producer != nil {
		listeners = append(listeners, events.NewEmitter(a.producer, a.logger))
	}
	if a.graph != nil {
		listeners = append(listeners, graph.NewProjector(a.graph, a.logger))
	}

	executorOpts := []linking.Option{linking.WithListeners(listeners...)}
	var snapshots session.SnapshotStore = session.NewMemorySnapshotStore()
	if a.redis != nil {
		executorOpts = append(executorOpts, linking.WithLocker(redis.NewLocker(a.redis, "")))
		snapshots = redis.NewSnapshotStore(a.redis, "")
	}

	executor := linking.NewExecutor(a.logger, a.entities, linking.Config{LockTTL: a.cfg.IdentifierLockTTL}, executorOpts...)
	matcher := domainmatch.NewMatcher(a.logger, a.entities, domainmatch.Config{
		MaxReverseSubstrings: a.cfg.MatchReverseSubstringCap,
		Workers:              a.cfg.MatchWorkers,
	})
	resolver := session.NewResolver(a.logger, a.entities, matcher, executor, session.Config{
		StrategyTimeout: a.cfg.StrategyTimeout,
		AutoLimit:       a.cfg.AutoSuggestionLimit,
		ManualLimit:     a.cfg.ManualSuggestionLimit,
		SnapshotTTL:     a.cfg.SessionTTL,
	}, session.WithSnapshotStore(snapshots), session.WithObserver(recorder))

	// startup retries rebuild the services, so every attempt gets its own container
	containerID := a.cfg.AppName + "-" + uuid.NewString()
	if _, err := services.NewContainer(containerID, services.Services{
		Logger:   a.logger,
		Entities: a.entities,
		Issues:   a.issues,
		Resolver: resolver,
		Executor: executor,
		Matcher:  matcher,
	}); err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Services(containerID))
	e.Use(middleware.Logger(a.logger))
	e.Use(metrics.Middleware())

	a.health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	if a.cfg.AuthEnabled {
		verifier, err := middleware.NewOIDCVerifier(ctx, a.cfg.AuthIssuerURL, a.cfg.AuthClientID)
		if err != nil {
			return err
		}
		api.Use(middleware.Authentication(a.logger, verifier))
	}

	resolution.Register(api.Group("/resolutions"))
	merge.Register(api.Group("/merges"))
	domain.Register(api.Group("/domains"))
	issue.Register(api.Group("/issues"))

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}
	return nil
}
