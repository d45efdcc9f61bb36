package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/tecnoaigent/backend/internal/config"
	"github.com/zhouzirui/tecnoaigent/backend/internal/handler"
	"github.com/zhouzirui/tecnoaigent/backend/internal/model/analytics"
	"github.com/zhouzirui/tecnoaigent/backend/internal/service/agent"
	"github.com/zhouzirui/tecnoaigent/backend/internal/service/auth"
	"github.com/zhouzirui/tecnoaigent/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Model catalog, optionally hot-reloaded from disk
	models, err := analytics.LoadStore(cfg.Catalog.Path)
	if err != nil {
		log.Fatalf("failed to load model catalog: %v", err)
	}
	if cfg.Catalog.Path != "" && cfg.Catalog.Watch {
		watcher, err := analytics.NewWatcher(models, cfg.Catalog.Path)
		if err != nil {
			log.Printf("warning: catalog hot reload disabled: %v", err)
		} else {
			go watcher.Run(ctx)
			log.Printf("watching model catalog %s", cfg.Catalog.Path)
		}
	}

	agentClient, err := agent.NewClient(ctx, cfg.Agent, nil)
	if err != nil {
		log.Fatalf("failed to initialize agent client: %v", err)
	}
	log.Printf("agent backend %s (reply contract %s)", cfg.Agent.QueryURL, cfg.Agent.ReplyContract)

	authOpts := auth.Options{
		Providers:    auth.ProvidersFromConfig(cfg.Auth, cfg.Server.PublicURL),
		SessionTTL:   cfg.Auth.SessionTTL,
		CookieSecure: cfg.Auth.CookieSecure,
	}
	if cfg.Auth.DevEmail != "" {
		authOpts.DevIdentity = &auth.Identity{Email: cfg.Auth.DevEmail, Name: cfg.Auth.DevName, Provider: "dev"}
		log.Printf("warning: development identity %s is active for every request", cfg.Auth.DevEmail)
	}
	if !cfg.Auth.AnyProvider() {
		log.Println("warning: no sign-in provider configured; set GOOGLE_* or AZURE_AD_* credentials")
	}
	authService := auth.NewService(authOpts)
	go authService.RunSweeper(ctx, 10*time.Minute)

	chatService := chat.NewService(agentClient, models, chat.WithIdleGrace(cfg.Server.SessionGrace))

	router := handler.NewRouter(handler.Deps{
		Models:       models,
		Auth:         authService,
		Chat:         chatService,
		Relay:        agentClient,
		PublicURL:    cfg.Server.PublicURL,
		MaxClipBytes: cfg.Agent.MaxClipBytes,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		// event streams and voice sockets end with the process context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	log.Printf("analytics chat backend listening on %s (public url %s)", addr, serverCfg.PublicURL)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
