package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/attachment"
	"github.com/Ramsey-B/fern/internal/repositories/auditlog"
	"github.com/Ramsey-B/fern/internal/repositories/entity"
	"github.com/Ramsey-B/fern/internal/repositories/importprofile"
	"github.com/Ramsey-B/fern/internal/repositories/job"
	"github.com/Ramsey-B/fern/internal/repositories/link"
	"github.com/Ramsey-B/fern/internal/repositories/validationresult"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/duplicates"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/jobs"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/queue"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/routes"
	"github.com/Ramsey-B/fern/pkg/similarity"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
	"github.com/Ramsey-B/fern/pkg/validation"
	"github.com/Ramsey-B/fern/pkg/validation/rules"
)

// Startup dependency names.
const (
	depTracing   = "tracing"
	depDatabase  = "database"
	depRedis     = "redis"
	depKafka     = "kafka"
	depGraph     = "graph"
	depServices  = "services"
	depProcessor = "processor"
	depSweeper   = "sweeper"
	depHTTP      = "http"
)

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %s: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = level

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

// app holds the process-wide dependencies. Commands add only the parts they need to startup.
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup

	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer
	graph    *graph.Client

	registry   *validation.Registry
	validation *validation.Service
	duplicates *duplicates.Service
	merger     *merging.Engine
	jobs       *jobs.Service
	importer   *importer.Service
	pipeline   *importer.Pipeline
	checker    *health.Checker
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	return &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		checker: health.NewChecker(cfg.Version),
	}
}

func (a *app) addTracing() {
	var shutdown func(context.Context) error
	a.startup.AddDependency(&startup.Dependency{
		Name: depTracing,
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = tracing.Setup(ctx, tracing.Config{
				ServiceName: a.cfg.AppName,
				Exporter:    a.cfg.TraceExporter,
				SampleRatio: a.cfg.TraceSampleRatio,
				OTLP: exporters.OTLPConfig{
					Endpoint: a.cfg.TraceEndpoint,
					Protocol: a.cfg.TraceProtocol,
					Insecure: a.cfg.TraceInsecure,
				},
			}, a.logger)
			return err
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	})
}

// addDatabase connects to Postgres and, when migrate is set, applies pending migrations.
func (a *app) addDatabase(migrate bool) {
	a.startup.AddDependency(&startup.Dependency{
		Name: depDatabase,
		OnStart: func(ctx context.Context) error {
			db, err := database.Connect(ctx, database.ConnectionConfig{
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
			a.db = db

			if migrate {
				if err := a.migrate(); err != nil {
					return err
				}
			}

			a.checker.Require(depDatabase, db.PingContext)
			return nil
		},
		OnStop: func(context.Context) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	})
}

func (a *app) migrate() error {
	instance, ok := a.db.(*database.DatabaseInstance)
	if !ok {
		return errors.New("migrations need a postgres database instance")
	}
	svc := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
		Version:             a.cfg.DatabaseMigrationVersion,
		Force:               a.cfg.DatabaseMigrationForce,
		AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
	})
	return svc.MigratePostgres(instance.SQLX(), a.cfg.DatabaseName)
}

func (a *app) addRedis() {
	a.startup.AddDependency(&startup.Dependency{
		Name: depRedis,
		OnStart: func(ctx context.Context) error {
			client, err := redis.NewClient(ctx, redis.Config{
				Host:     a.cfg.RedisHost,
				Port:     a.cfg.RedisPort,
				Password: a.cfg.RedisPassword,
				DB:       a.cfg.RedisDB,
				PoolSize: a.cfg.RedisPoolSize,
			}, a.logger)
			if err != nil {
				return err
			}
			a.redis = client
			a.checker.Require(depRedis, client.Ping)
			return nil
		},
		OnStop: func(context.Context) error {
			if a.redis == nil {
				return nil
			}
			return a.redis.Close()
		},
	})
}

func (a *app) addKafka() {
	a.startup.AddDependency(&startup.Dependency{
		Name: depKafka,
		OnStart: func(ctx context.Context) error {
			if !a.cfg.KafkaEnabled {
				a.logger.WithContext(ctx).Info("Kafka disabled, data-quality events will not be published")
				return nil
			}
			a.producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      a.cfg.KafkaBrokers,
				Topic:        a.cfg.KafkaOutputTopic,
				BatchSize:    a.cfg.KafkaBatchSize,
				BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
				RequiredAcks: a.cfg.KafkaRequiredAcks,
				Compression:  a.cfg.KafkaCompression,
			}, a.logger)
			return nil
		},
		OnStop: func(context.Context) error {
			if a.producer == nil {
				return nil
			}
			return a.producer.Close()
		},
	})
}

func (a *app) addGraph() {
	a.startup.AddDependency(&startup.Dependency{
		Name: depGraph,
		OnStart: func(ctx context.Context) error {
			if !a.cfg.GraphEnabled {
				a.logger.WithContext(ctx).Info("Graph projection disabled")
				return nil
			}
			client, err := graph.NewClient(graph.Config{
				Host:         a.cfg.GraphDBHost,
				Port:         a.cfg.GraphDBPort,
				Username:     a.cfg.GraphDBUser,
				Password:     a.cfg.GraphDBPassword,
				Database:     a.cfg.GraphDBName,
				MaxPoolSize:  a.cfg.GraphPoolSize,
				WriteTimeout: a.cfg.GraphTimeout,
			}, a.logger)
			if err != nil {
				return err
			}
			a.graph = client
			a.checker.Optional(depGraph, client.VerifyConnectivity)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if a.graph == nil {
				return nil
			}
			return a.graph.Close(ctx)
		},
	})
}

// addServices builds the domain services. withQueue publishes created jobs to the redis stream;
// without it jobs are only recorded and the caller runs them.
func (a *app) addServices(withQueue bool) {
	requires := []string{depDatabase, depKafka, depGraph}
	if withQueue {
		requires = append(requires, depRedis)
	}

	a.startup.AddDependency(&startup.Dependency{
		Name:     depServices,
		Requires: requires,
		OnStart: func(ctx context.Context) error {
			a.buildServices(withQueue)
			return nil
		},
	})
}

func (a *app) buildServices(withQueue bool) {
	entities := entity.NewRepository(a.db, a.logger)
	results := validationresult.NewRepository(a.db, a.logger)

	var emitter *events.Emitter
	if a.producer != nil {
		emitter = events.NewEmitter(a.producer, a.logger)
	}
	var projector *graph.Projector
	if a.graph != nil {
		projector = graph.NewProjector(a.graph, a.logger)
	}

	a.registry = rules.Bootstrap(a.logger)
	engine := validation.NewEngine(a.registry, results, a.logger)
	if emitter != nil {
		engine.WithEvents(emitter)
	}
	a.validation = validation.NewService(engine, results, entities, a.logger)

	scorer := similarity.NewBoundedScorer(a.cfg.SimilarityMaxRunes)
	a.duplicates = duplicates.NewService(duplicates.NewDetector(scorer), entities, a.logger)

	a.merger = merging.NewEngine(a.db, entities,
		link.NewRepository(a.db, a.logger),
		attachment.NewRepository(a.db, a.logger),
		auditlog.NewRepository(a.db, a.logger),
		a.logger)

	var jobQueue jobs.Queue
	if withQueue {
		a.merger.WithLocker(a.locker())
		jobQueue = queue.NewPublisher(redis.NewStreams(a.redis).WithMaxLen(a.cfg.JobStreamMaxLen), a.cfg.JobStream)
	}
	a.jobs = jobs.NewService(job.NewRepository(a.db, a.logger), jobQueue, a.logger)

	a.pipeline = importer.NewPipeline(a.jobs, engine, entities, a.logger).
		WithDB(a.db).
		WithSources(importer.SourceWithin(a.cfg.UploadDir))
	a.importer = importer.NewService(a.jobs, importprofile.NewRepository(a.db, a.logger), a.logger).
		WithUploadDir(a.cfg.UploadDir)

	if projector != nil {
		a.merger.WithGraph(projector)
		a.pipeline.WithGraph(projector)
	}
	if emitter != nil {
		a.merger.WithEvents(emitter)
		a.pipeline.WithEvents(emitter)
	}
}

func (a *app) locker() *redis.Locker {
	return redis.NewLocker(a.redis, a.cfg.LockPrefix, a.cfg.LockTTL, a.cfg.LockWait)
}

// addProcessor consumes the job stream and runs import jobs until shutdown.
func (a *app) addProcessor(runCtx context.Context) {
	var processor *queue.Processor
	a.startup.AddDependency(&startup.Dependency{
		Name:     depProcessor,
		Requires: []string{depServices, depRedis},
		OnStart: func(context.Context) error {
			processor = queue.NewProcessor(redis.NewStreams(a.redis), a.jobs, queue.ProcessorConfig{
				Stream:        a.cfg.JobStream,
				ConsumerGroup: a.cfg.JobConsumerGroup,
				MaxRetries:    a.cfg.WorkerMaxRetries,
				ClaimMinIdle:  a.cfg.WorkerClaimMinIdle,
				WorkerCount:   a.cfg.WorkerCount,
			}, a.logger)
			processor.Register(models.JobTypeImport, queue.HandlerFunc(a.pipeline.Handle))
			return processor.Start(runCtx)
		},
		OnStop: func(ctx context.Context) error {
			if processor == nil {
				return nil
			}
			return processor.Stop(ctx)
		},
	})
}

func (a *app) addSweeper(runCtx context.Context) {
	var sweeper *jobs.Sweeper
	a.startup.AddDependency(&startup.Dependency{
		Name:     depSweeper,
		Requires: []string{depServices, depRedis},
		OnStart: func(context.Context) error {
			sweeper = jobs.NewSweeper(a.jobs, a.locker(), jobs.SweeperConfig{
				Interval:  a.cfg.JobSweepInterval,
				Retention: a.cfg.JobRetention,
			}, a.logger)
			return sweeper.Start(runCtx)
		},
		OnStop: func(ctx context.Context) error {
			if sweeper == nil {
				return nil
			}
			return sweeper.Stop(ctx)
		},
	})
}

func (a *app) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(echomiddleware.Recover())
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))
	e.Use(echomiddleware.BodyLimit(a.cfg.BodyLimit))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))

	a.checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	routes.Register(e,
		routes.NewValidationHandler(a.validation, a.registry, a.logger),
		routes.NewMergeHandler(a.duplicates, a.merger, a.logger),
		routes.NewImportHandler(a.importer, a.logger),
		routes.NewJobHandler(a.jobs, a.logger),
	)
	return e
}

func (a *app) addHTTP() {
	var server *http.Server
	a.startup.AddDependency(&startup.Dependency{
		Name:     depHTTP,
		Requires: []string{depServices},
		OnStart: func(ctx context.Context) error {
			addr := fmt.Sprintf(":%d", a.cfg.Port)
			listener, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}

			server = &http.Server{
				Addr:              addr,
				Handler:           a.newEcho(),
				ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
				ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
				MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
			}

			go func() {
				a.logger.WithField("port", a.cfg.Port).Info("HTTP server listening")
				if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if server == nil {
				return nil
			}
			return server.Shutdown(ctx)
		},
	})
}

// run starts every added dependency, marks the service ready and blocks until ctx is done.
func (a *app) run(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		a.shutdown()
		return err
	}
	a.checker.SetReady(true)
	a.logger.Infof("%s started", a.cfg.AppName)

	<-ctx.Done()

	a.checker.SetReady(false)
	a.logger.Info("Shutting down")
	return a.shutdown()
}

func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	return a.startup.Stop(ctx)
}
