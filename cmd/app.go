package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jmehdipour/vm-relay/internal/config"
	"github.com/jmehdipour/vm-relay/internal/db"
	"github.com/jmehdipour/vm-relay/internal/dedup"
	"github.com/jmehdipour/vm-relay/internal/format"
	"github.com/jmehdipour/vm-relay/internal/kafka"
	"github.com/jmehdipour/vm-relay/internal/logger"
	"github.com/jmehdipour/vm-relay/internal/metrics"
	"github.com/jmehdipour/vm-relay/internal/relay"
	"github.com/jmehdipour/vm-relay/internal/repository"
	"github.com/jmehdipour/vm-relay/internal/ringcentral"
	"github.com/jmehdipour/vm-relay/internal/webhook"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// app holds everything one command needs, plus what must be closed on exit.
type app struct {
	cfg     config.Config
	relay   *relay.Relay
	closers []func() error
}

// loadConfig loads and validates config and initializes logging. A ConfigError
// here aborts before any network call.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		metrics.ErrorsTotal.WithLabelValues("config").Inc()
		logger.Log.Error("invalid configuration", zap.Error(err))
		return config.Config{}, err
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 1) provider client
	rc := ringcentral.New(ctx, ringcentral.Config{
		Server:                cfg.RingCentral.Server,
		ClientID:              cfg.RingCentral.ClientID,
		ClientSecret:          cfg.RingCentral.ClientSecret,
		JWT:                   cfg.RingCentral.JWT,
		AccountID:             cfg.RingCentral.AccountID,
		ExtensionID:           cfg.RingCentral.ExtensionID,
		PerPage:               cfg.RingCentral.PerPage,
		MaxPages:              cfg.RingCentral.MaxPages,
		Timeout:               cfg.RingCentral.Timeout,
		TranscriptionAttempts: cfg.RingCentral.Transcription.Attempts,
		TranscriptionInterval: cfg.RingCentral.Transcription.Interval,
	})

	// 2) webhook
	poster := webhook.NewHTTPPoster(
		cfg.Webhook.URL,
		cfg.Webhook.Timeout,
		cfg.Webhook.Breaker.FailThreshold,
		cfg.Webhook.Breaker.OpenFor,
	)

	r := relay.New(rc, poster, rc.ExtensionID())
	r.DaysBack = cfg.RingCentral.DaysBack
	r.Format = format.Options{Content: cfg.Webhook.Content, Username: cfg.Webhook.Username}
	r.Log = logger.Log

	a := &app{cfg: cfg, relay: r}

	// 3) optional stores; the pass works without them, so failures only warn
	if cfg.Redis.Addr != "" {
		rdb, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			logger.Log.Warn("redis unavailable, running without dedup claims", zap.Error(err))
		} else {
			r.Claims = dedup.NewRedisClaims(rdb, cfg.Dedup.KeyPrefix, cfg.Dedup.TTL, owner())
			a.closers = append(a.closers, rdb.Close)
		}
	}

	if cfg.Journal.Driver != "" {
		dbx, err := openJournal(ctx, cfg)
		if err != nil {
			logger.Log.Warn("journal unavailable, running without it", zap.Error(err))
		} else {
			r.Journal = repository.NewDeliveriesRepository(dbx)
			a.closers = append(a.closers, dbx.Close)
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducerFromConfig(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		})
		r.Events = producer
		a.closers = append(a.closers, producer.Close)
	}

	logger.Log.Info("vm-relay configured",
		zap.String("server", cfg.RingCentral.Server),
		zap.String("extension", cfg.RingCentral.ExtensionID),
		zap.Bool("dedup", r.Claims != nil),
		zap.Bool("journal", r.Journal != nil),
		zap.Bool("events", r.Events != nil),
	)
	return a, nil
}

// openJournal connects and makes sure the schema exists.
func openJournal(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	dbx, err := db.NewSQLConnection(cfg.Journal.Driver, cfg.Journal.DSN, db.SQLOpts{
		MaxOpenConns:    cfg.Journal.MaxOpenConns,
		MaxIdleConns:    cfg.Journal.MaxIdleConns,
		ConnMaxLifetime: cfg.Journal.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Journal.ConnMaxIdleTime,
		PingTimeout:     cfg.Journal.PingTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%s connect: %w", cfg.Journal.Driver, err)
	}
	if err := repository.Migrate(ctx, dbx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return dbx, nil
}

// pushMetrics reports a one-shot pass to the Pushgateway, if one is configured.
func (a *app) pushMetrics() {
	if a.cfg.Metrics.Pushgateway == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Push(ctx, a.cfg.Metrics.Pushgateway, a.cfg.Metrics.Job); err != nil {
		logger.Log.Warn("pushgateway", zap.Error(err))
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	logger.Sync()
}

// owner identifies this process in dedup claims.
func owner() string {
	host, _ := os.Hostname()
	return host + ":" + strconv.Itoa(os.Getpid())
}

// exitError logs a fatal error in the structured log before cobra prints it.
func exitError(msg string, err error) error {
	if ringcentral.IsAuth(err) {
		logger.Log.Error(msg+": authentication failed", zap.Error(err))
	} else {
		logger.Log.Error(msg, zap.Error(err))
	}
	return err
}
