// Package app wires the ingestion service together and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"edge-logger/internal/api"
	"edge-logger/internal/broker"
	"edge-logger/internal/collector"
	"edge-logger/internal/config"
	"edge-logger/internal/db"
	"edge-logger/internal/ingest"
	"edge-logger/internal/logger"
	"edge-logger/internal/message"
	"edge-logger/internal/metrics"
	"edge-logger/internal/state"
	"edge-logger/internal/storage"
	"edge-logger/internal/timesync"
)

const shutdownTimeout = 5 * time.Second

// Options are command-line overrides applied on top of the loaded config.
type Options struct {
	ConfigPath string
	LogDir     string
	HTTPPort   int
	TopicBase  string
}

// Run loads config, applies overrides, builds the service and runs it until ctx is done.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.LogDir != "" {
		cfg.Storage.LogDir = opts.LogDir
	}
	if opts.HTTPPort > 0 {
		cfg.HTTP.Port = opts.HTTPPort
	}
	if opts.TopicBase != "" {
		cfg.MQTT.TopicBase = opts.TopicBase
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, logCloser, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		File:   logFilePath(cfg.Log.File, cfg.Storage.LogDir),
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	svc, err := New(cfg, log)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}

// logFilePath places a relative app log file under logDir, next to the daily files.
func logFilePath(file, logDir string) string {
	if file == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(logDir, file)
}

// Service owns every long-lived component.
type Service struct {
	cfg config.Config
	log zerolog.Logger

	Registry *prometheus.Registry
	Store    *state.Store
	Writer   *storage.Writer
	Index    *db.DB // nil when storage.index_path is empty
	Pipeline *ingest.Pipeline

	broker    *broker.Client
	collector *collector.Manager
	handlers  *api.Handlers
	server    *http.Server
}

// New builds the service without starting anything.
func New(cfg config.Config, log zerolog.Logger) (*Service, error) {
	s := &Service{cfg: cfg, log: log}

	s.Registry = prometheus.NewRegistry()
	s.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(s.Registry)

	s.Store = state.NewStore(cfg.State.HistoryPoints)
	metrics.RegisterDeviceGauge(s.Registry, s.Store.Len)

	var index storage.Index
	var history api.History
	if cfg.Storage.IndexPath != "" {
		d, err := db.Open(cfg.Storage.IndexPath)
		if err != nil {
			return nil, err
		}
		s.Index = d
		index, history = d, d
	}

	w, err := storage.NewWriter(storage.WriterOptions{
		Dir:           cfg.Storage.LogDir,
		FlushInterval: cfg.Storage.FlushInterval,
		BatchSize:     cfg.Storage.BatchSize,
		PollTimeout:   cfg.Storage.PollTimeout,
		MaxQueue:      cfg.Storage.MaxQueue,
		Index:         index,
		Metrics:       m,
	}, logger.WithComponent(log, "writer"))
	if err != nil {
		s.closeIndex()
		return nil, err
	}
	s.Writer = w

	router := message.Router{Base: cfg.MQTT.TopicBase}
	qos := byte(cfg.MQTT.QoS)

	// the broker needs the pipeline's handler and the responder needs the broker
	var pipeline *ingest.Pipeline
	s.broker = broker.New(broker.Options{
		Host:           cfg.MQTT.Host,
		Port:           cfg.MQTT.Port,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		ClientID:       cfg.MQTT.ClientID,
		KeepAlive:      cfg.MQTT.KeepAlive,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		QoS:            qos,
		Filters:        router.Filters(),
	}, func(topic string, payload []byte) {
		pipeline.HandleMessage(topic, payload)
	}, logger.WithComponent(log, "mqtt"))

	responder := &timesync.Responder{
		Publisher: s.broker,
		Router:    router,
		QoS:       qos,
		Logger:    logger.WithComponent(log, "timesync"),
		Metrics:   m,
	}
	pipeline = ingest.New(router, s.Store, s.Writer, logger.WithComponent(log, "ingest"),
		ingest.WithMetrics(m),
		ingest.WithResponder(responder),
	)
	s.Pipeline = pipeline

	if cfg.Modbus.Enabled {
		s.collector = &collector.Manager{
			Servers:    cfg.Modbus.Servers,
			MaxWorkers: cfg.Modbus.MaxWorkers,
			DedupTTL:   cfg.Modbus.DedupTTL,
			Sink:       pipeline,
			Log:        logger.WithComponent(log, "modbus"),
		}
	}

	s.handlers = api.NewHandlers(s.Store, s.Writer, history, s.Registry, logger.WithComponent(log, "http"))
	s.server = &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           s.handlers.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP routes.
func (s *Service) Handler() http.Handler { return s.server.Handler }

// Run starts all components, blocks until ctx is done, then shuts down in reverse order.
func (s *Service) Run(ctx context.Context) error {
	s.Writer.Start()

	if err := s.broker.Connect(ctx); err != nil {
		s.Writer.Stop()
		s.closeIndex()
		return err
	}

	var wg sync.WaitGroup
	collectorCtx, stopCollector := context.WithCancel(context.Background())
	defer stopCollector()
	if s.collector != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.collector.Run(collectorCtx); err != nil {
				s.log.Error().Err(err).Msg("modbus collector exited")
			}
		}()
	}

	httpErr := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.server.Addr).Msg("http listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
		close(httpErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-httpErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	s.log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(sctx); err != nil {
		s.log.Warn().Err(err).Msg("http shutdown")
	}

	s.broker.Close()
	stopCollector()
	wg.Wait()

	s.shutdownStorage()
	return runErr
}

// shutdownStorage stops the writer and closes the index.
func (s *Service) shutdownStorage() {
	if left := s.Writer.Stop(); left > 0 {
		s.log.Warn().Int("records", left).Msg("telemetry still queued at shutdown was not written")
	}
	s.closeIndex()
}

func (s *Service) closeIndex() {
	if s.Index == nil {
		return
	}
	if err := s.Index.Close(); err != nil {
		s.log.Error().Err(err).Msg("close index")
	}
}
