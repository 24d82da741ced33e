package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/sirupsen/logrus"
	"github.com/viderstv/displaysync/display"
	"github.com/viderstv/displaysync/errors"
	"github.com/viderstv/displaysync/instance"
	"github.com/viderstv/displaysync/structures"
	"github.com/viderstv/displaysync/svc/mongo"
	"github.com/viderstv/displaysync/svc/redis"
	"github.com/viderstv/displaysync/svc/rmq"
	"github.com/viderstv/displaysync/svc/ticker"
)

func main() {
	configPath := flag.String("config", "", "path to a yaml config file")
	bind := flag.String("bind", "", "http listen address, overrides the config")
	source := flag.String("source", "", "event source: ticker, looper, redis or rmq")
	logLevel := flag.String("log-level", "", "logrus level, overrides the config")
	issueToken := flag.Bool("issue-token", false, "print a display grant signed with redis.jwt_key and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of an issued grant")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if *bind != "" {
		cfg.Bind = *bind
	}
	if *source != "" {
		cfg.Source = *source
		if err := cfg.validate(); err != nil {
			logrus.WithError(err).Fatal("bad source")
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("bad log level")
	}
	logrus.SetLevel(level)
	logger := logrus.WithField("display", cfg.Display)

	if *issueToken {
		token, err := issueGrant(cfg, time.Now().Add(*tokenTTL))
		if err != nil {
			logger.WithError(err).Fatal("failed to issue grant")
		}
		fmt.Println(token)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	displayCfg, err := loadTuning(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to load tuning")
	}
	displayCfg.Logger = logger

	t, reinit, closer, err := newTracker(ctx, cfg, displayCfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to start display tracking")
	}

	server := NewServer(cfg.Bind, t, reinit, logger)
	go func() {
		logger.WithField("bind", cfg.Bind).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("http server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.WithField("signal", s.String()).Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http server shutdown")
	}
	if err := closer.Close(); err != nil {
		logger.WithError(err).Error("closing display source")
	}
}

func issueGrant(cfg *Config, expiresAt time.Time) (string, error) {
	if cfg.Redis.JwtKey == "" {
		return "", fmt.Errorf("redis.jwt_key is not set")
	}
	channel := cfg.Redis.Channel
	if channel == "" {
		channel = redis.DefaultDisplayChannel
	}
	return structures.EncodeJwt(&structures.JwtDisplayPayload{
		Display: cfg.Display,
		Channel: channel,
		StandardClaims: jwt.StandardClaims{
			Subject:   cfg.Display,
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: expiresAt.Unix(),
		},
	}, cfg.Redis.JwtKey)
}

// loadTuning prefers the tuning stored for the display, seeding the store
// with the configured tuning when none exists yet.
func loadTuning(ctx context.Context, cfg *Config, logger logrus.FieldLogger) (display.Config, error) {
	tuning := cfg.Tuning
	tuning.Name = cfg.Display

	if cfg.Mongo.URI == "" {
		return display.ConfigFromTuning(tuning), nil
	}

	inst, err := mongo.New(ctx, mongo.SetupOptions{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		Direct:   cfg.Mongo.Direct,
	})
	if err != nil {
		return display.Config{}, err
	}
	defer func() {
		_ = inst.Disconnect(context.Background())
	}()

	stored, err := mongo.LoadTuning(ctx, inst, cfg.Display)
	if err == mongo.ErrNoDocuments {
		logger.Info("no stored tuning, saving configured tuning")
		if err := mongo.SaveTuning(ctx, inst, tuning); err != nil {
			return display.Config{}, err
		}
		return display.ConfigFromTuning(tuning), nil
	}
	if err != nil {
		return display.Config{}, err
	}

	logger.WithField("updated_at", stored.UpdatedAt).Info("using stored tuning")
	return display.ConfigFromTuning(stored), nil
}

// newTracker builds the configured event source. reinit is nil for sources
// that cannot lose their subscription.
func newTracker(ctx context.Context, cfg *Config, displayCfg display.Config, logger logrus.FieldLogger) (tracker, func(context.Context) error, io.Closer, error) {
	var (
		service instance.DisplayService
		release func() error
	)

	switch cfg.Source {
	case "ticker", "looper":
		td := ticker.New(ticker.SetupOptions{
			FPS:    cfg.Ticker.FPS,
			Jitter: time.Duration(cfg.Ticker.JitterUs) * time.Microsecond,
			Logger: logger,
		})
		td.Start()

		if cfg.Source == "looper" {
			l, err := display.NewLooper(td.Queue(), display.NewTiming(displayCfg), displayCfg)
			if err != nil {
				td.Stop()
				return nil, nil, nil, err
			}
			return l, nil, closerFunc(func() error {
				err := l.Close()
				td.Stop()
				return err
			}), nil
		}
		service = td
		release = func() error {
			td.Stop()
			return nil
		}
	case "redis":
		inst, err := redis.New(ctx, redis.SetupOptions{
			Username:   cfg.Redis.Username,
			Password:   cfg.Redis.Password,
			MasterName: cfg.Redis.MasterName,
			Database:   cfg.Redis.Database,
			Addresses:  cfg.Redis.Addresses,
			Sentinel:   cfg.Redis.Sentinel,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		service = redis.NewDisplayService(inst, redis.DisplayOptions{
			Channel: cfg.Redis.Channel,
			JwtKey:  cfg.Redis.JwtKey,
			Token:   cfg.Redis.Token,
			Logger:  logger,
		})
		release = inst.RawClient().Close
	case "rmq":
		inst, err := rmq.New(ctx, rmq.SetupOptions{URI: cfg.Rmq.URI})
		if err != nil {
			return nil, nil, nil, err
		}
		service = rmq.NewDisplayService(inst, rmq.DisplayOptions{
			Exchange: cfg.Rmq.Exchange,
			Logger:   logger,
		})
		release = inst.Close
	default:
		return nil, nil, nil, fmt.Errorf("unknown source %q", cfg.Source)
	}

	d := display.New(service, displayCfg)
	reinit := func(ctx context.Context) error {
		if err := d.Init(ctx); err != nil {
			return err
		}
		if !d.StartSync(true) {
			return errors.ErrSourceUnavailable
		}
		return nil
	}
	// a source that is down at startup is retried on the next prediction
	if err := reinit(ctx); err != nil {
		logger.WithError(err).Warn("display sync unavailable")
	}

	return d, reinit, closerFunc(func() error {
		err := d.Close()
		if release != nil {
			if rerr := release(); err == nil {
				err = rerr
			}
		}
		return err
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
