// Package cli implements the interactive client: a small REPL exposing the
// authentication operations of the session manager.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dmitrijs2005/authkeeper/internal/client/api"
	"github.com/dmitrijs2005/authkeeper/internal/client/config"
	"github.com/dmitrijs2005/authkeeper/internal/client/credentials"
	"github.com/dmitrijs2005/authkeeper/internal/client/session"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

type App struct {
	config  *config.Config
	manager *session.Manager
	reader  *bufio.Reader
	out     io.Writer
	closers []io.Closer
}

// newLogger builds the structured logger selected by the config. Unknown
// values fall back to slog.
func newLogger(backend string) logging.Logger {
	switch backend {
	case config.LogZerolog:
		return logging.NewZerologLogger(zerolog.New(os.Stderr).With().Timestamp().Logger())
	default:
		return logging.NewTextLogger(os.Stderr)
	}
}

func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	logger := newLogger(c.LogBackend)

	var closers []io.Closer

	var store credentials.Store
	switch c.StoreBackend {
	case config.BackendSQLite:
		s, err := credentials.Open(ctx, c.StorePath)
		if err != nil {
			return nil, err
		}
		store = s
		closers = append(closers, s)
	case config.BackendRedis:
		rc := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		store = credentials.NewRedisStore(rc, "")
		closers = append(closers, rc)
	case config.BackendMemory:
		store = credentials.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	mu := &sync.Mutex{}
	apiClient := api.New(api.Config{
		BaseURL: c.BaseURL,
		Store:   store,
		StoreMu: mu,
		Timeout: c.RequestTimeout,
		Logger:  logger,
	})
	closers = append(closers, apiClient)

	manager := session.NewManager(apiClient, store, session.Options{
		StoreMu:            mu,
		VerifyTokenOnStart: c.VerifyTokenOnStart,
		Logger:             logger,
	})

	app := &App{
		config:  c,
		manager: manager,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		closers: closers,
	}
	manager.OnInvalidate(func(error) {
		fmt.Fprintln(app.out, "Session expired, please login again")
	})
	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.close()

	if err := a.manager.Bootstrap(ctx); err != nil {
		return err
	}
	a.Root(ctx)
	return nil
}

func (a *App) close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}

// printError renders backend validation errors field by field; everything
// else is printed as-is.
func (a *App) printError(err error) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && len(apiErr.Fields) > 0 {
		if apiErr.Detail != "" {
			fmt.Fprintln(a.out, "Error:", apiErr.Detail)
		} else {
			fmt.Fprintln(a.out, "Error: invalid input")
		}
		for field, msgs := range apiErr.Fields {
			for _, msg := range msgs {
				fmt.Fprintf(a.out, "  %s: %s\n", field, msg)
			}
		}
		return
	}
	fmt.Fprintln(a.out, "Error:", err.Error())
}
