package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/yanun0323/logs"

	"livetrade/internal/obs"
	"livetrade/internal/ops"
	"livetrade/internal/scheduler"
	"livetrade/internal/server"
	"livetrade/internal/session"
	"livetrade/internal/strategy"
	"livetrade/pkg/conn"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	flag.Parse()

	_ = godotenv.Load()

	loaded, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if loaded.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: loaded.Profiling.ApplicationName,
			ServerAddress:   loaded.Profiling.ServerAddress,
			Logger:          profilerLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	repo, closeRepo, err := openRepository(ctx, loaded)
	if err != nil {
		log.Fatalf("strategy repository failed: %v", err)
	}
	defer closeRepo()

	metrics := obs.NewMetrics()
	tracer := obs.NewTracer(1024)
	hub := server.NewHub()

	registry, err := session.NewRegistry(repo, session.Config{
		Sizer:           session.FixedSize(loaded.Engine.PositionSize),
		Risk:            loaded.Risk,
		NotifyBuffer:    loaded.Engine.NotifyBuffer,
		LiquidateOnStop: loaded.Engine.LiquidateOnStop,
		Metrics:         metrics,
		Tracer:          tracer,
		Observer:        hub.Listener,
	})
	if err != nil {
		log.Fatalf("session registry failed: %v", err)
	}

	srv, err := server.New(server.Config{
		Addr:           loaded.Server.Addr,
		ReadTimeout:    loaded.Server.ReadTimeout,
		WriteTimeout:   loaded.Server.WriteTimeout,
		AllowedOrigins: loaded.Server.AllowedOrigins,
		Sessions:       registry,
		Strategies:     repo,
		Metrics:        metrics,
		Tracer:         tracer,
		Hub:            hub,
	})
	if err != nil {
		log.Fatalf("server init failed: %v", err)
	}

	sched := scheduler.New()
	if loaded.Scheduler.Enabled {
		if err := sched.AddJob(loaded.Scheduler.StatusSchedule, scheduler.NewStatusReportJob(registry, metrics, nil)); err != nil {
			log.Fatalf("status report schedule %q invalid: %v", loaded.Scheduler.StatusSchedule, err)
		}
	}
	sched.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logs.Errorf("http server failed, err: %+v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logs.Errorf("http server shutdown, err: %+v", err)
	}
	sched.Stop()
	if err := registry.Close(shutdownCtx); err != nil {
		logs.Errorf("close sessions, err: %+v", err)
	}
	logs.Info("livetrader stopped")
}

func loadConfig(path string) (ops.Loaded, error) {
	loaded := ops.Default()
	if path != "" {
		var err error
		if loaded, err = ops.Load(path); err != nil {
			return ops.Loaded{}, err
		}
	}
	return ops.ApplyEnv(loaded, os.LookupEnv)
}

type repository interface {
	session.StrategyRepository
	server.StrategyLister
	Save(ctx context.Context, def strategy.Definition) (strategy.Definition, error)
}

// openRepository uses postgres when configured and seeds it with the
// strategies of the config file. Without any configured strategies the
// built-in defaults are served.
func openRepository(ctx context.Context, loaded ops.Loaded) (repository, func(), error) {
	seed := loaded.Strategies

	if !loaded.Postgres.Enabled {
		if len(seed) == 0 {
			seed = ops.DefaultStrategies()
		}
		repo, err := strategy.NewMemoryRepository(seed...)
		if err != nil {
			return nil, nil, err
		}
		logs.Infof("in-memory strategy repository. strategies: %d", len(seed))
		return repo, func() {}, nil
	}

	client, err := conn.New(loaded.Postgres.Option)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logs.Errorf("close postgres, err: %+v", err)
		}
	}
	if err := client.Ping(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}

	repo := strategy.NewGormRepository(client.DB())
	if loaded.Postgres.Migrate {
		if err := repo.Migrate(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
	}

	existing, err := repo.List(ctx)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	if len(seed) == 0 && len(existing) == 0 {
		seed = ops.DefaultStrategies()
	}
	for _, def := range seed {
		if _, err := repo.Save(ctx, def); err != nil {
			closeFn()
			return nil, nil, err
		}
	}
	logs.Infof("postgres strategy repository. existing: %d, seeded: %d", len(existing), len(seed))
	return repo, closeFn, nil
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  { logs.Infof(format, args...) }
func (profilerLogger) Debugf(_ string, _ ...interface{})         {}
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }
