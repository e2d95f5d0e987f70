package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tyrowin/groupchat/internal/chat"
	"github.com/Tyrowin/groupchat/internal/clock"
	"github.com/Tyrowin/groupchat/internal/config"
	"github.com/Tyrowin/groupchat/internal/notify"
	"github.com/Tyrowin/groupchat/internal/server"
	"github.com/Tyrowin/groupchat/internal/store"
)

func parseLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	log.SetLevel(parseLevel(cfg.LogLevel))
	log.Infof("Starting GroupChat server...")

	st, err := store.Open(cfg.Store)
	if err != nil {
		log.Fatalf("opening %s store: %v", cfg.Store.Driver, err)
	}

	reg := chat.NewRegistry(st, clock.Real())
	if err := reg.Load(ctx); err != nil {
		log.Fatalf("loading state: %v", err)
	}

	hub := server.NewHub(server.NewMetrics(prometheus.DefaultRegisterer))
	go hub.Run()

	svc := chat.NewService(reg,
		chat.WithNotifier(notify.New(cfg)),
		chat.WithBroadcaster(hub),
	)

	api := server.CreateServer(cfg.Port, server.New(cfg, svc, hub, prometheus.DefaultRegisterer).Handler())
	metrics := server.CreateServer(cfg.MetricsPort, server.NewMetricsHandler(prometheus.DefaultGatherer))

	go func() {
		if err := server.StartServer(api); err != nil {
			log.Fatalf("api server: %v", err)
		}
	}()
	go func() {
		if err := server.StartServer(metrics); err != nil {
			log.Fatalf("metrics server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	if err := server.ShutdownServer(api, cfg.ShutdownTimeout); err != nil {
		log.Errorf("api shutdown: %v", err)
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Errorf("hub shutdown: %v", err)
	}
	if err := server.ShutdownServer(metrics, cfg.ShutdownTimeout); err != nil {
		log.Errorf("metrics shutdown: %v", err)
	}

	svc.Wait()
	if err := st.Close(); err != nil {
		log.Errorf("closing store: %v", err)
	}
	log.Infof("GroupChat server stopped")
}
