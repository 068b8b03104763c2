package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	requestcache "github.com/always-cache/request-cache"
	"github.com/always-cache/request-cache/cache"
	"github.com/always-cache/request-cache/pkg/admin"
	"github.com/always-cache/request-cache/pkg/config"
	"github.com/always-cache/request-cache/pkg/notify"
	"github.com/always-cache/request-cache/pkg/strategy"

	"github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	adminPortFlag      int
	originFlag         string
	addrFlag           string
	hostFlag           string
	dbFilenameFlag     string
	redisFlag          string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to YAML config file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides addr and host)")
	flag.StringVar(&addrFlag, "addr", "", "Origin IP address to proxy to")
	flag.StringVar(&hostFlag, "host", "", "Hostname of origin")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	flag.IntVar(&adminPortFlag, "admin-port", -1, "Port for the admin API, 0 to disable (overrides config)")
	flag.StringVar(&dbFilenameFlag, "db", "", "SQLite file to persist cache state to (use 'memory' for in-memory db)")
	flag.StringVar(&redisFlag, "redis", "", "Redis URL to persist cache state to (overrides db)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	conf, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	originURL, err := url.Parse(conf.Origin)
	if err != nil || originURL.Host == "" {
		log.Fatal().Err(err).Str("origin", conf.Origin).Msg("Could not parse origin url")
	}

	persister, err := conf.OpenPersister()
	if err != nil {
		log.Fatal().Err(err).Str("backend", conf.Persistence.Backend).Msg("Could not open persistence backend")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	storeOptions := []cache.Option{
		cache.WithLogger(log.Logger),
		cache.WithResolver(strategy.NewResolver(conf.Rules)),
		cache.WithPersister(persister),
		cache.WithMetrics(registry, originURL.Host),
	}
	// budgets from a config file win over the persisted ones,
	// without a file the last runtime configuration is restored
	if configFilenameFlag != "" {
		storeOptions = append(storeOptions, cache.WithSuppliedConfig())
	}
	store, err := cache.New(conf.Cache, storeOptions...)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create cache store")
	}

	notifier := notify.NewLogNotifier(&log.Logger, conf.NotifyWindow)

	clientConfig := requestcache.Config{
		Store:               store,
		Transport:           requestcache.OriginTransport(conf.Host),
		Notifier:            notifier,
		Logger:              &log.Logger,
		DisableInvalidation: conf.DisableInvalidation,
	}
	if len(conf.Transform) > 0 {
		clientConfig.ResponseModifier = conf.Transform.Apply
	}
	client, err := requestcache.CreateClient(clientConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create request cache")
	}

	servers := []*http.Server{{
		Addr:    fmt.Sprintf(":%d", conf.Port),
		Handler: client.ReverseProxy(originURL, conf.Host),
	}}
	if conf.Admin.Port > 0 {
		servers = append(servers, &http.Server{
			Addr: fmt.Sprintf(":%d", conf.Admin.Port),
			Handler: admin.NewRouter(admin.Config{
				Store:    store,
				Gatherer: registry,
				Logger:   &log.Logger,
			}),
		})
		log.Info().Msgf("Admin API listening on port %d", conf.Admin.Port)
	}

	errs := make(chan error, len(servers))
	for _, server := range servers {
		go func(server *http.Server) {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errs <- err
			}
		}(server)
	}
	log.Info().Msgf("Proxying port %v to %s (with hostname '%s')", conf.Port, originURL.String(), conf.Host)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errs:
		log.Error().Err(err).Msg("Server failed")
	case sig := <-signals:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Str("addr", server.Addr).Msg("Could not shut down server")
		}
	}
	client.Close()
	notifier.Close()
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("Could not save cache state")
	}
}

// loadConfig reads the config file, if any, and applies the command line overrides.
func loadConfig() (config.Config, error) {
	conf := config.Default()
	if configFilenameFlag != "" {
		var err error
		if conf, err = config.Load(configFilenameFlag); err != nil {
			return conf, err
		}
	}

	// get the downstream server address
	if originFlag != "" {
		conf.Origin = originFlag
	} else if addrFlag != "" {
		conf.Origin = "https://" + addrFlag
	}
	if hostFlag != "" {
		conf.Host = hostFlag
	}
	if conf.Origin == "" {
		return conf, errors.New(errors.CodeInvalidConfig, "please specify origin")
	}

	if portFlag > 0 {
		conf.Port = portFlag
	}
	if adminPortFlag >= 0 {
		conf.Admin.Port = adminPortFlag
	}
	if redisFlag != "" {
		conf.Persistence.Backend = config.BackendRedis
		conf.Persistence.RedisURL = redisFlag
	} else if dbFilenameFlag != "" {
		conf.Persistence.Backend = config.BackendSQLite
		conf.Persistence.File = dbFilenameFlag
	}
	return conf, conf.Validate()
}
