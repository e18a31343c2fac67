package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"mqw.szuro.net/internal/config"
	"mqw.szuro.net/internal/dispatch"
	"mqw.szuro.net/internal/input"
	"mqw.szuro.net/internal/logger"
	"mqw.szuro.net/internal/plugin"
	"mqw.szuro.net/internal/router"
	"mqw.szuro.net/internal/scheduler"
	"mqw.szuro.net/internal/service"
	pluginPkg "mqw.szuro.net/pkg/plugin"
)

const (
	readyDelay       = 5 * time.Second
	watchdogInterval = 10 * time.Second
	shutdownTimeout  = 5 * time.Second
)

func printVersionInfo() {
	fmt.Printf("mqw %s\n", config.Version)
	fmt.Printf("Git commit: %s\n", config.Commit)
	fmt.Printf("Compilation time: %s\n", config.BuildDate)
}

func main() {
	confPath := flag.String("c", "/etc/mqwd.yaml", "Path of config file")
	version := flag.Bool("v", false, "Show version info")
	watch := flag.Bool("w", true, "Reload routing configuration when the file changes")
	flag.Parse()

	if *version {
		printVersionInfo()
		os.Exit(0)
	}

	conf, err := config.Load(*confPath)
	if err != nil {
		logger.Error("Cannot load configuration", slog.String("path", *confPath), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Configure(os.Stderr, conf.LogFormat)
	logger.SetLogLevel(conf.GetLogLevel())

	registry := plugin.GetRegistry()
	service.RegisterBuiltins(registry)

	// Load plugins if plugin directory is configured
	if conf.PluginsDir != "" {
		if err := registry.LoadPluginsFromDir(conf.PluginsDir); err != nil {
			logger.Error("Failed to load plugins", slog.Any("error", err))
			// Continue execution - plugins are optional
		}
	}
	for name, path := range conf.ExternalPlugins {
		if err := registry.LoadExternal(name, path); err != nil {
			logger.Error("Failed to register external plugin", slog.String("name", name), slog.Any("error", err))
		}
	}
	for _, p := range registry.ListPlugins() {
		logger.Debug("Service type available",
			slog.String("name", p.Name),
			slog.String("type", p.Type),
			slog.String("version", p.Version))
	}

	dispatcher := dispatch.New(conf, initServices(conf))
	rt := router.New(conf)
	subject := input.NewSubject(rt, dispatcher, conf.NumWorkers, conf.BufferSize, conf.Defaults.SkipRetained)

	watchdog := input.NewTopicWatchdog(dispatcher, conf.Sections, watchdogInterval)
	subject.Register(watchdog)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	inputs, err := buildInputs(conf, subject, dispatcher, mux)
	if err != nil {
		logger.Error("Cannot set up inputs", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return subject.AcceptValues(gctx) })
	g.Go(func() error { return watchdog.Run(gctx) })
	if *watch {
		g.Go(func() error {
			err := config.Watch(gctx, *confPath, func(c *config.MQWConf) {
				logger.SetLogLevel(c.GetLogLevel())
				rt.Swap(c)
				dispatcher.UpdateConfig(c)
			})
			if err != nil {
				logger.Error("Config watcher stopped", slog.Any("error", err))
			}
			return nil
		})
	}

	for _, inp := range inputs {
		for !inp.IsReady() {
			logger.Info("Input is not active, sleeping", slog.String("input", inp.Name()), slog.Duration("delay", readyDelay))
			time.Sleep(readyDelay)
		}
		if err := inp.Start(gctx); err != nil {
			logger.Error("Cannot start input", slog.String("input", inp.Name()), slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Input is active", slog.String("input", inp.Name()))
	}

	listen := fmt.Sprintf("%s:%d", conf.Http.ListenAddress, conf.Http.ListenPort)
	server := &http.Server{Addr: listen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.String("listen", listen), slog.Any("error", err))
		}
	}()

	config.MqwInfo.Set(1)
	logger.Info("mqw started", slog.String("listen", listen), slog.Int("sections", len(conf.Sections)))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	select {
	case s := <-sig:
		logger.Info("Received signal", slog.String("signal", s.String()))
	case <-gctx.Done():
		logger.Error("Background task stopped", slog.Any("error", context.Cause(gctx)))
	}

	shutdown(inputs, server)
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Background task failed", slog.Any("error", err))
	}
	dispatcher.Cleanup()
	registry.CleanupAll()
	logger.Info("Exiting...")
}

// initServices creates every configured service. A service that cannot be
// created is logged and left out; its targets are skipped at dispatch time.
func initServices(conf *config.MQWConf) map[string]pluginPkg.Service {
	services := make(map[string]pluginPkg.Service, len(conf.Services))
	for name, sc := range conf.Services {
		svc, err := sc.ToService(name)
		if err != nil {
			logger.Error("Service unavailable", slog.String("service", name), slog.Any("error", err))
			continue
		}
		services[name] = svc
		logger.Info("Service ready", slog.String("service", name), slog.String("type", sc.Type))
	}
	return services
}

func buildInputs(conf *config.MQWConf, subject *input.Subject, dispatcher *dispatch.Dispatcher, mux *http.ServeMux) ([]input.Inputer, error) {
	var inputs []input.Inputer
	if conf.Inputs.HTTP {
		inputs = append(inputs, input.NewHTTPInput(subject, mux))
	}
	if len(conf.Inputs.Files) > 0 {
		fi, err := input.NewFileInput(subject, conf.WorkingDir, conf.Inputs.Files)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, fi)
	}
	if conf.Inputs.NATS.URL != "" {
		inputs = append(inputs, input.NewNATSInput(subject, dispatcher, conf.Inputs.NATS))
	}
	if len(conf.Cron) > 0 {
		sched := scheduler.New(subject, conf.Cron)
		if err := sched.Validate(); err != nil {
			return nil, err
		}
		inputs = append(inputs, sched)
	}
	if len(inputs) == 0 {
		logger.Warn("No inputs configured")
	}
	return inputs, nil
}

func shutdown(inputs []input.Inputer, server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.Any("error", err))
	}
	for _, inp := range inputs {
		if err := inp.Stop(); err != nil {
			logger.Error("stopping failed", slog.String("input", inp.Name()), slog.Any("error", err))
		}
	}
}
