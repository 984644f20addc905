package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/cctvwall/cctvwall/config"
	"github.com/cctvwall/cctvwall/controllers"
	"github.com/cctvwall/cctvwall/core/console"
	"github.com/cctvwall/cctvwall/logging"
	"github.com/cctvwall/cctvwall/metrics"
	"github.com/cctvwall/cctvwall/router"
)

var version = "0.1.0"

const historyRetention = 24 * time.Hour

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	historyDir := flag.String("historydir", "", "Directory for bitrate history; kept in memory when empty")
	webServerPortOverride := flag.Int("webserverport", 0, "Force the web server to listen on a specific port")
	logLevel := flag.String("loglevel", "", "Override the configured log level")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cctvwall v%s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalln("failed to load config:", err)
	}
	if *webServerPortOverride > 0 {
		cfg.Web.Port = *webServerPortOverride
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if err := logging.Setup(cfg.Log.Level, cfg.Log.Dir); err != nil {
		log.Fatalln("failed to set up logging:", err)
	}
	log.Infof("starting cctvwall v%s against %s", version, cfg.Backend.BaseURL)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := console.NewFromConfig(cfg)
	if err != nil {
		log.Fatalln("failed to set up playback:", err)
	}
	if err := c.Load(ctx); err != nil {
		log.Fatalln("failed to load camera catalogue:", err)
	}

	history, err := metrics.NewHistory(*historyDir, historyRetention)
	if err != nil {
		log.Fatalln("failed to open bitrate history:", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(c, history)
	if err := collector.Register(reg); err != nil {
		log.Fatalln("failed to register metrics:", err)
	}

	controllers.Setup(c, history)
	hub := controllers.NewHub(c)

	handler, err := router.New(hub, reg)
	if err != nil {
		log.Fatalln("failed to build routes:", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		collector.Run(ctx, metrics.SampleInterval)
	}()

	if err := router.Start(ctx, cfg.Web.Port, handler); err != nil {
		log.Errorln("web server failed:", err)
		cancel()
	}

	log.Infoln("shutting down")
	hub.Close()
	c.Close()
	wg.Wait()
	if err := history.Close(); err != nil {
		log.Warnln("unable to close bitrate history:", err)
	}
}
