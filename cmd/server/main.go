package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"datapulse/internal/auth"
	"datapulse/internal/config"
	"datapulse/internal/export"
	apphttp "datapulse/internal/http"
	"datapulse/internal/notify"
	"datapulse/internal/quote"
	"datapulse/internal/realtime"
	"datapulse/internal/repository/sqlite"
	"datapulse/internal/service"
	"datapulse/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	pointRepo := sqlite.NewDataPointRepository(db)
	if err := sqlite.InitAll(ctx, userRepo, pointRepo); err != nil {
		logger.Fatalf("init repositories: %v", err)
	}

	hub := realtime.NewHub(logger, cfg.CORS.Origins)
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Workers:   cfg.Notify.Workers,
		QueueSize: cfg.Notify.QueueSize,
		Logger:    logger,
	})
	fanout := notify.NewFanout(dispatcher, hub, buildMailer(cfg, logger), logger)

	userService := service.NewUserService(userRepo, cfg.Auth.BcryptCost)
	dataService := service.NewDataService(pointRepo, fanout)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.TokenTTL())
	quotes := quote.NewClient(quote.Config{
		URL:     cfg.Quote.URL,
		APIKey:  cfg.Quote.APIKey,
		Timeout: cfg.Quote.Timeout,
	}, nil)
	if cfg.Quote.URL == "" {
		logger.Warn("quote url not configured, /external-quote will return 502")
	}

	opts := apphttp.Options{
		CORSOrigins: cfg.CORS.Origins,
		RateLimit:   cfg.RateLimit.Requests,
		RateWindow:  cfg.RateLimit.Window,
		StartedAt:   time.Now(),
		Realtime:    hub,
		Logger:      logger,
	}
	if cfg.Storage.Bucket != "" {
		storageSvc, err := buildStorage(ctx, cfg, logger)
		if err != nil {
			logger.Fatalf("setup storage: %v", err)
		}
		opts.Archiver = export.NewArchiver(storageSvc, cfg.Storage.Bucket, cfg.Storage.KeyPrefix, cfg.Storage.URLTTL)
	} else {
		logger.Info("storage bucket not configured, export archiving disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Fatalf("invalid trusted proxies: %v", err)
	}
	handler := apphttp.NewHandler(userService, dataService, tokens, quotes, opts)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("notification drain: %v", err)
	}

	logger.Info("bye")
}

func buildMailer(cfg config.Config, logger *logrus.Logger) notify.Mailer {
	if cfg.Mail.Host == "" {
		logger.Info("smtp host not configured, email notifications disabled")
		return notify.NopMailer{}
	}
	mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:               cfg.Mail.Host,
		Port:               cfg.Mail.Port,
		Username:           cfg.Mail.Username,
		Password:           cfg.Mail.Password,
		From:               cfg.Mail.From,
		To:                 cfg.Mail.To,
		Timeout:            cfg.Mail.Timeout,
		InsecureSkipVerify: cfg.Mail.InsecureSkipVerify,
	})
	if err != nil {
		logger.Warnf("email notifications disabled: %v", err)
		return notify.NopMailer{}
	}
	logger.Infof("email notifications via %s:%d", cfg.Mail.Host, cfg.Mail.Port)
	return mailer
}

func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client), nil
}
