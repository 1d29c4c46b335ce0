package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "rag-chat",
		Short:         "Chat with a model about your own documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgPath, "config", "cfg/config.yaml", "Configuration file")

	cmd.AddCommand(
		newServeCmd(&cfgPath),
		newIngestCmd(&cfgPath),
		newListCmd(&cfgPath),
		newRemoveCmd(&cfgPath),
		newResetCmd(&cfgPath),
		newQueryCmd(&cfgPath),
		newAskCmd(&cfgPath),
		newChatCmd(&cfgPath),
		newSettingsCmd(&cfgPath),
	)

	return cmd
}

// withApp opens the shared components for the duration of fn.
func withApp(cfgPath string, fn func(a *app) error) error {
	a, err := openApp(cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server and watch the inbox directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*cfgPath, func(a *app) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				return serve(ctx, a)
			})
		},
	}
}

func serve(ctx context.Context, a *app) error {
	assistant, err := a.assistant()
	if err != nil {
		return err
	}

	srv := NewRagServer(a.ranker, a.registry, assistant, a.cfg.Ranking.MaxChunks, a.log)
	sse := server.NewSSEServer(srv, server.WithBaseURL(fmt.Sprintf("http://%s", a.cfg.ServerAddr)))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.registry.Sync(ctx); err != nil {
			return err
		}

		return a.registry.Watch(ctx)
	})

	g.Go(func() error {
		a.log.Info("serving", "addr", a.cfg.ServerAddr, "backend", a.cfg.Backend.Kind)
		err := sse.Start(a.cfg.ServerAddr)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return sse.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
