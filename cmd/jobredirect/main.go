// jobredirect submits a workflow file to the remote job service instead of running
// it locally, then tracks the job until it finishes or is dismissed.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobredirect/internal/config"
	"jobredirect/internal/dispatcher"
	"jobredirect/internal/health"
	"jobredirect/internal/host"
	"jobredirect/internal/job"
	"jobredirect/internal/jobservice"
	"jobredirect/internal/lifecycle"
	"jobredirect/internal/observability"
	"jobredirect/internal/poller"
	"jobredirect/internal/presenter"
	"jobredirect/internal/statusserver"
)

// exitFallback tells the caller to run the workflow locally.
const exitFallback = 2

var errFallback = errors.New("submission failed, run locally")

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: jobredirect <workflow.json|workflow.yaml>")
		os.Exit(1)
	}

	if err := run(os.Args[1]); err != nil {
		if errors.Is(err, errFallback) {
			os.Exit(exitFallback)
		}
		slog.Error("jobredirect failed", "error", err)
		os.Exit(1)
	}
}

func run(workflowPath string) error {
	ctx := context.Background()

	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("Failed to load .env", "error", err)
	}

	clientCfg := config.LoadClientConfig()
	serverCfg := config.LoadServerConfig()

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	client := jobservice.New(clientCfg)
	statusPoller := poller.New(client, poller.Config{
		Interval: clientCfg.PollInterval,
		MaxDelay: clientCfg.PollMaxDelay,
	}, metrics)

	events := job.NewEventBuilder("jobredirect/"+clientCfg.UserID, clientCfg.UserID)
	view := presenter.NewState()
	done := newWatcher()
	presenters := []lifecycle.Presenter{presenter.NewLog(nil), view}

	var eventDispatcher dispatcher.Dispatcher
	var webhookBreaker health.BreakerReporter
	if serverCfg.WebhookURL != "" {
		d := dispatcher.NewMemory(dispatcher.LoadConfigFromEnv(), metrics)
		eventDispatcher = d
		webhookBreaker = func() string { return d.Stats().Breaker }
		presenters = append(presenters, presenter.NewWebhook(d, serverCfg.WebhookURL, serverCfg.WebhookKey, events))
		slog.Info("Webhook delivery enabled", "url", serverCfg.WebhookURL, "signed", serverCfg.WebhookKey != "")
	}

	if serverCfg.NATSURL != "" {
		nc, err := presenter.ConnectNATS(serverCfg.NATSURL)
		if err != nil {
			slog.Warn("NATS unavailable, lifecycle events will not be published", "url", serverCfg.NATSURL, "error", err)
		} else {
			defer nc.Drain()
			presenters = append(presenters, presenter.NewNATS(nc, serverCfg.NATSSubject, events))
			slog.Info("Connected to NATS", "url", nc.ConnectedUrl(), "subject", serverCfg.NATSSubject)
		}
	}
	presenters = append(presenters, done)

	workflow := host.NewFile(workflowPath, os.Stderr, nil)
	controller := lifecycle.NewController(client, statusPoller, presenter.NewMulti(presenters...), workflow, lifecycle.Options{
		UserID:       clientCfg.UserID,
		RefreshDelay: clientCfg.RefreshDelay,
		Metrics:      metrics,
	})
	defer controller.Close()

	healthChecker := health.NewChecker(client, webhookBreaker)

	var servers []*http.Server
	serverErr := make(chan error, 2)
	serve := func(name string, srv *http.Server) {
		servers = append(servers, srv)
		go func() {
			slog.Info("Starting "+name, "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	if serverCfg.StatusAddr != "" {
		router := statusserver.NewRouter(statusserver.RouterConfig{
			Controller:    controller,
			View:          view,
			HealthChecker: healthChecker,
			Dispatcher:    eventDispatcher,
			Metrics:       metrics,
			Token:         serverCfg.StatusToken,
		})
		serve("status server", statusserver.NewServer(serverCfg.StatusAddr, router))
		if serverCfg.StatusToken == "" {
			slog.Warn("Status server authentication disabled - no STATUS_TOKEN_FILE configured")
		}
	}
	if serverCfg.MetricsPort != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", metricsHandler)
		serve("metrics server", &http.Server{
			Addr:         ":" + serverCfg.MetricsPort,
			Handler:      metricsMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		})
	}

	shutdown := func() {
		healthChecker.SetShuttingDown()
		controller.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownGrace)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server shutdown error", "addr", srv.Addr, "error", err)
			}
		}

		if eventDispatcher != nil {
			if err := eventDispatcher.Close(shutdownCtx); err != nil {
				slog.Warn("Dispatcher shutdown error", "error", err)
			}
			stats := eventDispatcher.Stats()
			slog.Info("Dispatcher stats",
				"delivered", stats.Delivered,
				"failed", stats.Failed,
				"dropped", stats.Dropped,
			)
		}
		slog.Info("Shutdown complete")
	}

	hook := lifecycle.NewHook(workflow, controller)
	submitCtx, submitCancel := context.WithTimeout(ctx, clientCfg.HTTPTimeout+5*time.Second)
	fallback := hook.QueuePrompt(submitCtx)
	submitCancel()
	if fallback {
		shutdown()
		return errFallback
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	exitOnIdle := done.Done()
	if !serverCfg.ExitOnIdle {
		exitOnIdle = nil
	}

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		shutdown()
		return err
	case o := <-exitOnIdle:
		if o.status == job.StatusCompleted {
			waitForRefresh(workflow, clientCfg.RefreshDelay)
		}
		slog.Info("Tracking finished", "status", o.status, "dismissed", o.dismissed)
	}

	shutdown()
	return nil
}

// waitForRefresh gives the scheduled result refresh a chance to run before exit.
func waitForRefresh(h *host.File, delay time.Duration) {
	select {
	case <-h.Refreshed():
	case <-time.After(delay + 30*time.Second):
		slog.Warn("Result refresh did not run before exit")
	}
}
