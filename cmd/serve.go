package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/muse/internal/auth"
	"github.com/desertthunder/muse/internal/chat"
	"github.com/desertthunder/muse/internal/proposals"
	"github.com/desertthunder/muse/internal/repositories"
	"github.com/desertthunder/muse/internal/server"
	"github.com/desertthunder/muse/internal/services"
	"github.com/desertthunder/muse/internal/shared"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

// Serve wires the full application and runs the HTTP server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))
	if port := cmd.Int("port"); port > 0 {
		config.Server.Port = int(port)
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	manager, err := auth.NewManager(auth.ManagerOpts{
		ClientID:     config.Credentials.Spotify.ClientID,
		ClientSecret: config.Credentials.Spotify.ClientSecret,
		RedirectURI:  config.Credentials.Spotify.RedirectURI,
		Logger:       r.logger,
	})
	if err != nil {
		return err
	}

	spotifyClient := services.NewSpotifyClient(services.SpotifyClientOpts{Logger: r.logger})

	searchService, err := services.NewSearchService(services.SearchServiceOpts{
		ClientID:     config.Credentials.Spotify.ClientID,
		ClientSecret: config.Credentials.Spotify.ClientSecret,
		Client:       spotifyClient,
		Logger:       r.logger,
	})
	if err != nil {
		return err
	}

	geminiClient, err := services.NewGeminiClient(services.GeminiClientOpts{
		APIKey:  config.Credentials.Gemini.APIKey,
		Model:   config.Credentials.Gemini.Model,
		BaseURL: config.Credentials.Gemini.BaseURL,
		Logger:  r.logger,
	})
	if err != nil {
		return err
	}

	cache, err := r.proposalCache(config)
	if err != nil {
		return err
	}

	machine := proposals.NewMachine(proposals.MachineOpts{
		Cache:  cache,
		Search: searchService,
		Writer: spotifyClient,
		TTL:    time.Duration(config.Cache.ProposalTTL) * time.Second,
		Logger: r.logger,
	})

	orchestrator := chat.NewOrchestrator(chat.OrchestratorOpts{
		Model:      geminiClient,
		Machine:    machine,
		Profiles:   spotifyClient,
		Transcript: repositories.NewMessageRepository(db),
		Logger:     r.logger,
	})

	app := server.NewApp(server.AppOpts{
		Host:         config.Server.Host,
		Port:         config.Server.Port,
		Auth:         server.NewAuthHandler(manager, r.logger),
		Library:      server.NewLibraryHandler(manager, spotifyClient, r.logger),
		Chat:         server.NewChatHandler(manager, orchestrator, r.logger),
		FrontendDist: config.Server.FrontendDist,
		Logger:       r.logger,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.ListenAndServe(ctx)
}

// proposalCache selects the proposal cache backend from configuration.
func (r *Runner) proposalCache(config *shared.Config) (proposals.Cache, error) {
	switch config.Cache.Backend {
	case "", "memory":
		r.logger.Debug("using in-memory proposal cache")
		return proposals.NewMemoryCache(), nil
	case "redis":
		if config.Cache.RedisAddr == "" {
			return nil, fmt.Errorf("%w: cache.redis_addr is required for the redis backend", shared.ErrInvalidConfig)
		}
		r.logger.Debug("using redis proposal cache", "addr", config.Cache.RedisAddr)
		client := redis.NewClient(&redis.Options{Addr: config.Cache.RedisAddr})
		return proposals.NewRedisCache(client), nil
	default:
		return nil, fmt.Errorf("%w: unknown cache backend %q", shared.ErrInvalidConfig, config.Cache.Backend)
	}
}
