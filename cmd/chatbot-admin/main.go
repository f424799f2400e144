package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/devLink-Developer/chatbot-camping/config"
	"github.com/devLink-Developer/chatbot-camping/internal/bootstrap"
	"github.com/devLink-Developer/chatbot-camping/internal/data"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
	"github.com/devLink-Developer/chatbot-camping/internal/service"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultCommandTimeout = 5 * time.Minute

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrate,
		},
		"queue-stats": {
			name:        "queue-stats",
			description: "Print message queue counts for both directions",
			run:         runQueueStats,
		},
		"requeue": {
			name:        "requeue",
			description: "Return a failed message to its claimable state",
			run:         runRequeue,
		},
		"list-jobs": {
			name:        "list-jobs",
			description: "List scheduled job configs",
			run:         runListJobs,
		},
		"trigger-job": {
			name:        "trigger-job",
			description: "Execute a job config immediately",
			run:         runTriggerJob,
		},
		"flush-content-cache": {
			name:        "flush-content-cache",
			description: "Drop cached menu and response renderings from Redis",
			run:         runFlushContentCache,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: chatbot-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	for _, c := range commands() {
		if err := writef(os.Stdout, "  %-22s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

// withCommandContext opens the database, runs fn, and tears everything down.
func withCommandContext(cmdCtx *commandContext, fn func(ctx context.Context, deps commandDeps) error) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, defaultCommandTimeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	return fn(ctx, commandDeps{
		DB:       db,
		Messages: data.NewMessageRepo(db),
		Configs:  data.NewJobConfigRepo(db),
	})
}

type commandDeps struct {
	DB       *sql.DB
	Messages *data.MessageRepo
	Configs  *data.JobConfigRepo
}

func runMigrate(cmdCtx *commandContext, _ []string) error {
	return withCommandContext(cmdCtx, func(ctx context.Context, deps commandDeps) error {
		if err := bootstrap.RunMigrations(ctx, deps.DB, cmdCtx.Logger); err != nil {
			return err
		}
		cmdCtx.Logger.Info("migrations completed successfully")
		return nil
	})
}

func runQueueStats(cmdCtx *commandContext, _ []string) error {
	return withCommandContext(cmdCtx, func(ctx context.Context, deps commandDeps) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		if err := writef(w, "DIRECTION\tPENDING\tQUEUED\tPROCESSING\tPROCESSED\tSENT\tFAILED\n"); err != nil {
			return err
		}
		for _, dir := range []model.Direction{model.DirectionIn, model.DirectionOut} {
			stats, err := deps.Messages.Stats(ctx, dir)
			if err != nil {
				return fmt.Errorf("stats for %s: %w", dir, err)
			}
			if err := writef(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
				dir, stats.Pending, stats.Queued, stats.Processing,
				stats.Processed, stats.Sent, stats.Failed); err != nil {
				return err
			}
		}
		return w.Flush()
	})
}

func runRequeue(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("requeue", flag.ContinueOnError)
	id := fs.String("id", "", "message id to requeue")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("requeue requires -id")
	}

	return withCommandContext(cmdCtx, func(ctx context.Context, deps commandDeps) error {
		ok, err := deps.Messages.Requeue(ctx, *id)
		if err != nil {
			return fmt.Errorf("requeue message: %w", err)
		}
		if !ok {
			return fmt.Errorf("message %s is not in a requeueable state", *id)
		}
		cmdCtx.Logger.Info("message requeued", "id", *id)
		return nil
	})
}

func runListJobs(cmdCtx *commandContext, _ []string) error {
	return withCommandContext(cmdCtx, func(ctx context.Context, deps commandDeps) error {
		configs, err := deps.Configs.List(ctx)
		if err != nil {
			return fmt.Errorf("list job configs: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		if err := writef(w, "ID\tNAME\tTASK\tSCHEDULE\tENABLED\tPAUSED\tNEXT RUN\tLAST STATUS\n"); err != nil {
			return err
		}
		for _, cfg := range configs {
			nextRun := "-"
			if cfg.NextRunAt != nil {
				nextRun = cfg.NextRunAt.UTC().Format(time.RFC3339)
			}
			lastStatus := "-"
			if cfg.LastStatus != nil {
				lastStatus = string(*cfg.LastStatus)
			}
			if err := writef(w, "%s\t%s\t%s\t%s\t%t\t%t\t%s\t%s\n",
				cfg.ID, cfg.Name, cfg.TaskName, cfg.ScheduleType,
				cfg.Enabled, cfg.Paused, nextRun, lastStatus); err != nil {
				return err
			}
		}
		return w.Flush()
	})
}

func runTriggerJob(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("trigger-job", flag.ContinueOnError)
	id := fs.String("id", "", "job config id to execute")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("trigger-job requires -id")
	}

	return withCommandContext(cmdCtx, func(ctx context.Context, deps commandDeps) error {
		registry := service.NewTaskRegistry()
		engine, err := service.NewJobEngine(service.JobEngineOptions{
			Configs:    deps.Configs,
			Registry:   registry,
			Logger:     cmdCtx.Logger,
			StaleAfter: cmdCtx.Config.Scheduler.StaleAfter,
		})
		if err != nil {
			return fmt.Errorf("build job engine: %w", err)
		}

		runLog, err := engine.Execute(ctx, *id, "admin")
		if err != nil {
			return fmt.Errorf("execute job: %w", err)
		}
		if runLog == nil {
			return fmt.Errorf("run of job config %s was skipped", *id)
		}
		cmdCtx.Logger.Info("job executed",
			"run_id", runLog.ID, "status", runLog.Status, "message", runLog.Message)
		return nil
	})
}

func runFlushContentCache(cmdCtx *commandContext, _ []string) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, defaultCommandTimeout)
	defer cancel()

	redisClient, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient == nil {
		cmdCtx.Logger.Info("redis cache disabled; nothing to flush")
		return nil
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	cache := data.NewRedisCacheRepo(redisClient)
	if err := cache.DeleteByPrefix(ctx, "content:"); err != nil {
		return fmt.Errorf("flush content cache: %w", err)
	}
	cmdCtx.Logger.Info("content cache flushed")
	return nil
}
