package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/cosec/internal/cosec/config"
	"github.com/gartstein/cosec/internal/cosec/controller"
	"github.com/gartstein/cosec/internal/cosec/db"
	"github.com/gartstein/cosec/internal/cosec/docgen"
	"github.com/gartstein/cosec/internal/cosec/events"
	"github.com/gartstein/cosec/internal/cosec/handlers"
	"github.com/gartstein/cosec/internal/cosec/mailer"
	"github.com/gartstein/cosec/internal/cosec/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	logger := initLogger()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	repo, err := connectDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	producer, err := events.NewProducer(cfg.KafkaBrokers, logger, cfg.Topic)
	if err != nil {
		logger.Fatal("failed to initialize Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	records := controller.NewRecordService(repo, producer, logger)
	pipeline := newPipeline(cfg, repo, producer, m, logger)

	server := handlers.NewServer(cfg.GRPCPort, cfg.HTTPPort, logger)
	api := handlers.NewAPI(records, pipeline, logger)
	if err := server.RegisterHTTPGateway(
		[]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
		cfg.JWTSecret,
		api,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	); err != nil {
		logger.Fatal("Failed to register HTTP gateway", zap.Error(err))
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Failed to start servers", zap.Error(err))
		}
	}()

	waitForShutdown(server, logger)
}

// initLogger initializes a Zap production logger.
func initLogger() *zap.Logger {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	return logger
}

// connectDatabase retries until the database accepts connections.
func connectDatabase(cfg *config.Config, logger *zap.Logger) (*db.Repository, error) {
	dbConf := &db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	var repo *db.Repository
	err := backoff.RetryNotify(func() error {
		var err error
		repo, err = db.NewRepository(dbConf)
		return err
	}, b, func(err error, wait time.Duration) {
		logger.Warn("Database not ready", zap.Error(err), zap.Duration("retry_in", wait))
	})
	return repo, err
}

// newMailTransport sends through SMTP, or only logs when no host is set.
func newMailTransport(cfg config.SMTPConfig, logger *zap.Logger) mailer.Transport {
	if cfg.Host == "" {
		return mailer.NewLogTransport(logger)
	}
	return mailer.NewSMTPTransport(mailer.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		UseTLS:   cfg.UseTLS,
	}, logger)
}

func newPipeline(cfg *config.Config, repo *db.Repository, producer *events.Producer, m *metrics.Metrics, logger *zap.Logger) *docgen.Pipeline {
	d := cfg.Documents
	return docgen.NewPipeline(
		docgen.PipelineConfig{DateFormat: d.DateFormat, Location: cfg.Location()},
		docgen.NewResolver(repo, d.TemplatesDir, d.WorkDir, d.FetchTimeout, logger),
		docgen.DocxRenderer{},
		docgen.NewSofficeConverter(docgen.ConverterConfig{
			Binaries:      d.ConverterBinaries,
			WorkDir:       d.WorkDir,
			Timeout:       d.ConvertTimeout,
			MaxConcurrent: d.MaxConversions,
		}, m, logger),
		docgen.NewDispatcher(repo, newMailTransport(cfg.SMTP, logger), cfg.SMTP.From, d.MediaRoot, logger),
		producer,
		m,
		logger,
	)
}

// waitForShutdown blocks until an interrupt or SIGTERM is received, then shuts down servers.
func waitForShutdown(server *handlers.Server, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	server.SetServing(false)
	server.Stop()
	logger.Info("Servers stopped properly")
}
