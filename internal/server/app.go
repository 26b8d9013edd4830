package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/muse/internal/shared"
)

// App owns the HTTP server: it assembles the router from the handler groups and runs
// the listener with graceful shutdown.
type App struct {
	addr   string
	router Router
	logger *log.Logger
}

// AppOpts contains the handler groups and listen address for building an App.
type AppOpts struct {
	Host         string
	Port         int
	Auth         *AuthHandler
	Library      *LibraryHandler
	Chat         *ChatHandler
	FrontendDist string // empty disables static serving
	Logger       *log.Logger
}

// NewApp builds the router and wires middleware and handlers.
func NewApp(opts AppOpts) *App {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	router := NewBasicRouter()
	router.Use(LoggingMiddleware(opts.Logger))

	router.Handler(opts.Auth)
	router.Handler(opts.Library)
	router.Handler(opts.Chat)

	if opts.FrontendDist != "" {
		router.Handler(NewStaticHandler(opts.FrontendDist))
	}

	return &App{
		addr:   fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		router: router,
		logger: opts.Logger,
	}
}

// ListenAndServe runs the server until the context is canceled, then drains in-flight
// requests before returning.
func (a *App) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("server listening", "addr", a.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
