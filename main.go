package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/gorilla/mux"
	"github.com/halcyon-mobile/message-settings-api/configs"
	"github.com/halcyon-mobile/message-settings-api/datastore/gorm"
	"github.com/halcyon-mobile/message-settings-api/handlers"
	"github.com/halcyon-mobile/message-settings-api/otel"
	"github.com/halcyon-mobile/message-settings-api/prefstore"
	"github.com/halcyon-mobile/message-settings-api/settings"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/ratelimit"
)

const version = "0.1.0"

var (
	sha1ver   string // sha1 revision used to build the program
	buildTime string // when the executable was built
)

func main() {
	var printVersion bool

	// If we should just print the version number and exit
	flag.BoolVar(&printVersion, "version", false, "if true, print version and exit")
	flag.Parse()

	if printVersion {
		fmt.Printf("v%s build on %s from sha1 %s\n", version, buildTime, sha1ver)
		os.Exit(0)
	}

	cfg, err := configs.Parse()
	if err != nil {
		panic(err)
	}

	runServer(cfg)

	os.Exit(0)
}

// newServerHandler builds the router and the middleware chain around it.
// A nil idempotency store disables the idempotency middleware.
func newServerHandler(cfg *configs.Config, settingsService *settings.Service, is handlers.IdempotencyStore) http.Handler {
	settingsHandler := handlers.NewSettings(settingsService)

	r := mux.NewRouter()

	if cfg.EnableTracing {
		r.Use(otelmux.Middleware("message-settings-api"))
	}

	// Catch the api version
	rv := r.PathPrefix("/{apiVersion}").Subrouter()

	// The timeout applies per route. http.TimeoutHandler's response
	// writer does not implement http.Flusher, so the watch stream must
	// stay outside it; it lives until the client goes away.
	withTimeout := func(h http.Handler) http.Handler {
		return http.TimeoutHandler(h, cfg.ServerRequestTimeout, "request timed out")
	}

	// Debug
	rv.Handle("/debug", withTimeout(handlers.Debug("https://github.com/halcyon-mobile/message-settings-api", sha1ver, buildTime))).Methods(http.MethodGet)

	// Health
	rv.Handle("/health/ready", withTimeout(http.HandlerFunc(handlers.HandleHealthReady))).Methods(http.MethodGet)
	rv.Handle("/health/liveness", withTimeout(handlers.Liveness(func() (interface{}, error) {
		current, err := settingsService.GetSettings(context.Background())
		if err != nil {
			return nil, err
		}
		return current.ToJSON(), nil
	}))).Methods(http.MethodGet)

	// Settings
	rv.Handle("/settings", withTimeout(settingsHandler.GetSettings())).Methods(http.MethodGet)
	rv.Handle("/settings", withTimeout(handlers.UseJson(settingsHandler.SetSettings()))).Methods(http.MethodPost)
	rv.Handle("/settings/watch", settingsHandler.Watch()).Methods(http.MethodGet)

	var h http.Handler = r
	h = handlers.UseCors(h)
	h = handlers.UseLogging(h)
	h = handlers.UseCompress(h)

	// Setup idempotency key middleware if it's enabled
	if is != nil {
		h = handlers.UseIdempotency(h, handlers.IdempotencyHandlerOptions{
			Expiry: 1 * time.Hour,
		}, is)
	}

	return h
}

func runServer(cfg *configs.Config) {
	configs.ConfigureLogger(cfg.LogLevel)

	log.Info("Starting server")

	if cfg.EnableTracing {
		tp, err := otel.InitTracer()
		if err != nil {
			log.Fatal(err)
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Warn(err)
			}
		}()
	}

	// Database
	db, err := gorm.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer gorm.Close(db)

	// Preference store; one instance per process, shared by everything
	// that reads or writes settings.
	store := prefstore.NewGormStore(db)
	defer func() {
		store.Close()
		log.Info("Closed preference store")
	}()

	// Settings accessor
	var settingsOpts []settings.ServiceOption
	if cfg.SettingsMaxWriteRate > 0 {
		settingsOpts = append(settingsOpts,
			settings.WithWriteRatelimiter(ratelimit.New(cfg.SettingsMaxWriteRate, ratelimit.WithoutSlack)))
	}
	settingsService := settings.NewService(store, settingsOpts...)

	// Idempotency key storage
	var is handlers.IdempotencyStore
	if !cfg.DisableIdempotencyMiddleware {
		switch cfg.IdempotencyMiddlewareDatabaseType {
		// Shared SQL/Gorm store (same as for main app)
		case handlers.IdempotencyStoreTypeShared.String():
			is = handlers.NewIdempotencyStoreGorm(db)
		// Redis, separate from app db
		case handlers.IdempotencyStoreTypeRedis.String():
			if cfg.IdempotencyMiddlewareRedisURL == "" {
				log.Fatal("idempotency middleware db set to redis but Redis URL is empty")
			}
			pool := &redis.Pool{
				MaxIdle:   80,
				MaxActive: 12000,
				Dial: func() (redis.Conn, error) {
					c, err := redis.DialURL(cfg.IdempotencyMiddlewareRedisURL)
					if err != nil {
						panic(err.Error())
					}
					return c, err
				},
			}

			client := pool.Get()

			defer func() {
				log.Info("Closing Redis client..")
				if err := client.Close(); err != nil {
					log.Warn(err)
				}
			}()

			is = handlers.NewIdempotencyStoreRedis(client)
		case handlers.IdempotencyStoreTypeLocal.String():
			is = handlers.NewIdempotencyStoreLocal()
		}
	}

	// Server boilerplate
	srv := &http.Server{
		Handler:      newServerHandler(cfg, settingsService, is),
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		WriteTimeout: 0, // Disabled, the timeout applies per route
		ReadTimeout:  0, // Disabled, the timeout applies per route
	}

	// Run our server in a goroutine so that it doesn't block.
	go func() {
		log.
			WithFields(log.Fields{
				"host": cfg.Host,
				"port": cfg.Port,
			}).
			Info("Server listening")
		if err := srv.ListenAndServe(); err != nil {
			log.Warn(err)
		}
	}()

	// Poll for commits made by other processes sharing the database
	if cfg.StorePollInterval > 0 {
		listener := prefstore.NewListener(store, cfg.StorePollInterval)
		listener.Start()

		defer func() {
			listener.Stop()
			log.Info("Stopped preference store listener")
		}()

		log.Info("Started preference store listener")
	}

	// Trap interupt or sigterm and gracefully shutdown the server
	c := make(chan os.Signal, 1)
	// We'll accept graceful shutdowns when quit via SIGINT (Ctrl+C)
	// SIGKILL, SIGQUIT or SIGTERM (Ctrl+/) will not be caught.
	signal.Notify(c, os.Interrupt)

	// Block until we receive our signal.
	sig := <-c

	log.Infof("Got signal: %s. Shutting down..", sig)

	// Create a deadline to wait for.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("Error in server shutdown: %s", err)
	}
}
