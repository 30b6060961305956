package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/ihazratummar/Neat-Roots-Chat-app/api"
	"github.com/ihazratummar/Neat-Roots-Chat-app/blob"
	"github.com/ihazratummar/Neat-Roots-Chat-app/client"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/auth"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/config"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/logger"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/uploads"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore/pgstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore/sqlitestore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/identity"
	"github.com/ihazratummar/Neat-Roots-Chat-app/status"
	"github.com/ihazratummar/Neat-Roots-Chat-app/ws"
)

func main() {
	// Load app config
	v, err := config.LoadConfig("config")
	if err != nil {
		log.Fatalf("\n\x1b[31m Error reading the config file: %v\x1b[0m\n", err)
	}
	cfg, err := config.ParseConfig(v)
	if err != nil {
		log.Fatalf("\n\x1b[31m Error parsing the config file: %v\x1b[0m\n", err)
	} else if err := cfg.Validate(); err != nil {
		log.Fatalf("\x1b[31mThe config is not valid: %v\x1b[0m\n\n", err)
	}

	logg := logger.New(cfg.Log)
	slog.SetDefault(logg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the document store and create HTTP request multiplexer
	store, closeStore, err := openStore(ctx, cfg, logg)
	if err != nil {
		logg.Error("cannot open document store", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	clients := &client.Factory{
		Store:    store,
		Blobs:    blob.NewFS(cfg.Blobs.Dir, cfg.Blobs.PublicURL, cfg.Blobs.MaxBytes),
		Accounts: identity.NewAccounts(store),
		Window:   cfg.Status.Window,
		Log:      logg,
	}
	tokens := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.AccessTTL)
	mux := http.NewServeMux()

	// API ----------------------------------------------------------------------------

	(&api.API{Clients: clients, Tokens: tokens, MaxUpload: cfg.Blobs.MaxBytes, Log: logg}).Register(mux)
	mux.Handle("/api/ws", ws.NewController(clients, cfg.Server.AllowedOrigins, logg))

	// --------------------------------------------------------------------------------

	// Static files, unless blobs are served from another host
	if strings.HasPrefix(cfg.Blobs.PublicURL, "/") {
		prefix := strings.TrimSuffix(cfg.Blobs.PublicURL, "/")
		mux.Handle(prefix+"/", uploads.Server{Dir: cfg.Blobs.Dir, Prefix: prefix})
	}

	// Middleware
	handler := auth.Guard(tokens)(mux)
	handler = cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowCredentials: true,
	}).Handler(handler)

	server := &http.Server{Addr: ":" + cfg.Server.Port, Handler: handler}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info("server is running", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if cfg.Status.Retention > 0 {
		sweeper := status.NewSweeper(store, cfg.Status.Retention, cfg.Status.SweepEvery, logg)
		g.Go(func() error { return sweeper.Run(ctx) })
	}

	if err := g.Wait(); err != nil {
		logg.Error("server stopped", "err", err)
		os.Exit(1)
	}
	logg.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (docstore.Store, func(), error) {
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := sqlitestore.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	case "postgres":
		pool, err := pgstore.Connect(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		var rdb *redis.Client
		if cfg.Redis.Addr != "" {
			rdb = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
		}
		s := pgstore.New(pool, rdb, log)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, func() {
			if rdb != nil {
				rdb.Close()
			}
			pool.Close()
		}, nil
	}
	return docstore.NewMemory(), func() {}, nil
}
