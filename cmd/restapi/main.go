// Command restapi is the HTTP façade collaborator named in SPEC_FULL
// §6.2: a thin echo/v4 server wired to an in-process RunService, grounded
// on the teacher's cmd/orchestrator main/routes/handlers layering.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lyzr/workflow-engine/cmd/restapi/handlers"
	"github.com/lyzr/workflow-engine/cmd/restapi/service"
	"github.com/lyzr/workflow-engine/common/config"
	commondb "github.com/lyzr/workflow-engine/common/db"
	"github.com/lyzr/workflow-engine/common/logger"
	commonredis "github.com/lyzr/workflow-engine/common/redis"
	"github.com/lyzr/workflow-engine/internal/contextstore"
	"github.com/lyzr/workflow-engine/internal/engine"
	"github.com/lyzr/workflow-engine/internal/taskqueue"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load("restapi")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	taskStore, dbConn, err := buildTaskStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to build task store", "error", err)
		os.Exit(1)
	}
	if dbConn != nil {
		defer dbConn.Close()
	}

	var ctxNotifier contextstore.Notifier
	if cfg.Engine.RedisNotify {
		rc := commonredis.NewClient(goredis.NewClient(&goredis.Options{Addr: cfg.Engine.RedisAddr}), log)
		taskStore = taskqueue.NewNotifyingStore(taskStore, taskqueue.NewRedisNotifier(rc, "workflow:tasks"))
		ctxNotifier = contextstore.NewRedisNotifier(rc, "workflow:contexts")
		log.Info("redis notification side-channel enabled", "addr", cfg.Engine.RedisAddr)
	}

	retry := &engine.RetryPolicy{
		BaseDelay:   cfg.Engine.RetryBaseDelay,
		Factor:      cfg.Engine.RetryFactor,
		Jitter:      cfg.Engine.RetryJitter,
		MaxAttempts: cfg.Engine.RetryMaxAttempts,
	}
	runService := service.NewRunService(taskStore, log, cfg.Engine.ModelCredential, retry, ctxNotifier)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())

	e.GET("/health", func(c echo.Context) error {
		if dbConn != nil {
			if err := dbConn.Health(c.Request().Context()); err != nil {
				return c.JSON(503, map[string]string{"status": "degraded", "service": "restapi", "error": err.Error()})
			}
		}
		return c.JSON(200, map[string]string{"status": "ok", "service": "restapi"})
	})

	runHandler := handlers.NewRunHandler(runService)
	taskHandler := handlers.NewTaskHandler(runService)
	registerRoutes(e, runHandler, taskHandler)

	log.Info("starting restapi", "port", cfg.Service.Port)
	if err := e.Start(fmt.Sprintf(":%d", cfg.Service.Port)); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildTaskStore picks the durable Postgres adapter when TASK_STORE=postgres
// is configured, falling back to the in-memory store otherwise (§6
// "Task-store adapter (pluggable)"). The returned *db.DB is nil for the
// in-memory case; callers use it to back /health and to close the pool on
// shutdown.
func buildTaskStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (taskqueue.Store, *commondb.DB, error) {
	if cfg.Engine.TaskStoreKind != "postgres" {
		log.Info("using in-memory task store")
		return taskqueue.NewMemoryStore(), nil, nil
	}

	dbConn, err := commondb.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	log.Info("using postgres task store", "host", cfg.Database.Host, "db", cfg.Database.Database)
	return taskqueue.NewPostgresStore(dbConn.Pool), dbConn, nil
}
