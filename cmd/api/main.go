package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/jewel_cart/internal/auth"
	"github.com/fjod/jewel_cart/internal/cache"
	"github.com/fjod/jewel_cart/internal/config"
	h "github.com/fjod/jewel_cart/internal/http"
	"github.com/fjod/jewel_cart/internal/live"
	"github.com/fjod/jewel_cart/internal/logger"
	"github.com/fjod/jewel_cart/internal/notify"
	"github.com/fjod/jewel_cart/internal/publisher"
	"github.com/fjod/jewel_cart/internal/repository"
	"github.com/fjod/jewel_cart/internal/repository/postgres"
	"github.com/fjod/jewel_cart/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load(getEnv("JEWEL_CONFIG_DIR", "configs"), os.Getenv("JEWEL_ENV"))
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.App.LogMode, cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// prices go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	ctx := context.Background()

	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Fatal("failed to connect to MongoDB", "error", err)
	}
	defer func() { _ = mongoDB.Client().Disconnect(context.Background()) }()
	if err := repository.EnsureIndexes(ctx, mongoDB); err != nil {
		log.Fatal("failed to create indexes", "error", err)
	}
	log.Info("connected to MongoDB", "database", cfg.Mongo.Database)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// the cart cache degrades to a miss on every call
		log.Warn("redis ping failed", "addr", cfg.Redis.Addr, "error", err)
	}

	carts := repository.NewCartRepository(mongoDB)
	products := repository.NewProductRepository(mongoDB)
	orders := repository.NewOrderRepository(mongoDB)
	users := repository.NewUserRepository(mongoDB)
	cartCache := cache.NewRedisCache(redisClient, cfg.Redis.CartTTL)

	var (
		recorder   notify.Recorder
		deliveries service.DeliveryLog
	)
	if cfg.Postgres.DSN != "" {
		pg, err := postgres.NewDeliveryRepository(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Fatal("failed to connect to postgres", "error", err)
		}
		defer pg.Close()
		if err := pg.RunMigrations(); err != nil {
			log.Fatal("failed to run migrations", "error", err)
		}
		recorder, deliveries = pg, pg
		log.Info("notification delivery log enabled")
	}

	hub := live.NewHub(log, cfg.HTTP.AllowedOrigins)
	defer hub.Close()

	sinks, closeSinks := buildSinks(cfg, log)
	defer closeSinks()
	sinks = append(sinks, hub)

	notifier := notify.NewNotifier(notify.Config{
		SendTimeout:        cfg.Notify.SendTimeout,
		BreakerMaxFailures: cfg.Notify.Breaker.MaxFailures,
		BreakerOpenTimeout: cfg.Notify.Breaker.OpenTimeout,
	}, log, recorder, sinks...)

	cartService := service.NewCartService(carts, products, cartCache, log, cfg.Checkout.CartRetries)
	orderService := service.NewOrderService(service.OrderDeps{
		Carts:      carts,
		Products:   products,
		Orders:     orders,
		Users:      users,
		Cache:      cartCache,
		Notifier:   notifier,
		Deliveries: deliveries,
	}, service.OrderConfig{
		Timeout:        cfg.Checkout.Timeout,
		NotifyTimeout:  cfg.Notify.Timeout,
		Currency:       cfg.Checkout.Currency,
		OrderPrefix:    cfg.Checkout.OrderPrefix,
		DefaultPayment: cfg.Checkout.DefaultPayment,
		StatusRetries:  cfg.Checkout.StatusRetries,
	}, log)

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatal("invalid auth config", "error", err)
	}

	router := h.NewRouter(h.RouterDeps{
		Carts:          cartService,
		Products:       products,
		Orders:         orderService,
		Auth:           h.NewAuthenticator(tokens, users, log),
		Live:           hub,
		Log:            log,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("API starting", "addr", cfg.App.HTTPAddr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	// let in-flight notifications finish, bounded by the notify timeout
	drained := make(chan struct{})
	go func() {
		orderService.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(cfg.Notify.Timeout):
		log.Warn("gave up waiting for notifications")
	}

	log.Info("server exited")
}

// buildSinks wires the optional transports. A sink whose transport is not
// configured is skipped.
func buildSinks(cfg config.Config, log *logger.Logger) ([]notify.Sink, func()) {
	var sinks []notify.Sink
	closers := []func(){}

	renderer, err := notify.NewRenderer(cfg.Notify.AssetBaseURL, cfg.Notify.SupportEmail)
	if err != nil {
		log.Fatal("failed to parse message templates", "error", err)
	}

	if cfg.Notify.SendGrid.APIKey != "" {
		mailer, err := notify.NewSendGridClient(log, notify.SendGridConfig{
			APIKey:     cfg.Notify.SendGrid.APIKey,
			BaseURL:    cfg.Notify.SendGrid.BaseURL,
			FromEmail:  cfg.Notify.SendGrid.FromEmail,
			FromName:   cfg.Notify.SendGrid.FromName,
			Timeout:    cfg.Notify.SendTimeout,
			MaxRetries: 2,
		})
		if err != nil {
			log.Fatal("invalid sendgrid config", "error", err)
		}
		sinks = append(sinks,
			notify.NewOperatorEmailSink(mailer, renderer, cfg.Notify.OperatorEmail),
			notify.NewCustomerEmailSink(mailer, renderer),
		)
	} else {
		log.Warn("sendgrid api key not set, email notifications disabled")
	}

	if cfg.Notify.WhatsApp.URL != "" {
		chat, err := notify.NewWhatsAppClient(cfg.Notify.WhatsApp.URL, cfg.Notify.WhatsApp.APIKey, cfg.Notify.SendTimeout)
		if err != nil {
			log.Fatal("invalid whatsapp config", "error", err)
		}
		sinks = append(sinks, notify.NewWhatsAppSink(chat, renderer, cfg.Notify.OperatorPhone))
	} else {
		log.Warn("whatsapp gateway not set, chat notifications disabled")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		k := publisher.NewKafkaSink(cfg.Kafka.TopicEvents, cfg.Kafka.Brokers...)
		sinks = append(sinks, k)
		closers = append(closers, func() { _ = k.Close() })
		log.Info("kafka order events enabled", "topic", cfg.Kafka.TopicEvents)
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
