package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/gin-gonic/gin"
	go_json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Zachkp/skycode/internal/analytics"
	"github.com/Zachkp/skycode/internal/config"
	"github.com/Zachkp/skycode/internal/content"
	"github.com/Zachkp/skycode/internal/page"
	"github.com/Zachkp/skycode/internal/xslog"
)

const (
	readHeaderTimeout = 10 * time.Second
	cleanupInterval   = 24 * time.Hour
)

func main() {
	logger := xslog.NewLoggerFromEnv(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(logger).ExecuteContext(ctx); err != nil {
		logger.ErrorContext(ctx, "fatal error", xslog.Error(err))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	serve := func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Read()
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		return run(cmd.Context(), cfg, logger)
	}

	root := &cobra.Command{
		Use:           "skycode",
		Short:         "Pilot by day, coder by night: the portfolio server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the portfolio page",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		fieldCmd(),
		contentCmd(),
	)
	return root
}

func fieldCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "field",
		Short: "Print a generated decorative background field as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 0 {
				return fmt.Errorf("count must not be negative, got %d", count)
			}
			out, err := go_json.MarshalIndent(page.GenerateField(nil, count), "", "  ")
			if err != nil {
				return fmt.Errorf("encoding field: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", page.DefaultFieldSize, "number of tokens")
	return cmd
}

func contentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Inspect portfolio content",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Load and validate a content file (the embedded default when no path is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			p, err := content.Load(path)
			if err != nil {
				return err
			}
			skills := 0
			for _, g := range p.Skills {
				skills += len(g.Skills)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: %s, %d sections, %d skills, %d projects\n",
				p.Owner.Name, len(p.Sections()), skills, len(p.Projects))
			return err
		},
	})
	return cmd
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	gin.SetMode(cfg.Mode)

	portfolio, err := content.Load(cfg.ContentPath)
	if err != nil {
		return fmt.Errorf("failed to load content: %w", err)
	}

	var stats *analytics.Store
	if cfg.Analytics.Enabled {
		stats, err = analytics.Open(cfg.Analytics.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open analytics: %w", err)
		}
		defer func() {
			if err := stats.Close(); err != nil {
				logger.ErrorContext(ctx, "failed to close analytics", xslog.Error(err))
			}
		}()
		logger.InfoContext(ctx, "privacy-conscious visitor tracking enabled", xslog.Path(cfg.Analytics.DatabasePath))
	}

	srv, err := newServer(cfg, logger, portfolio, stats)
	if err != nil {
		return err
	}

	// Request contexts derive from base so hijacked websocket connections
	// notice shutdown; http.Server.Shutdown does not track them.
	base, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.router(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return base },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.InfoContext(gctx, "server listening", xslog.Addr(httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return srv.sessions.Run(gctx, cfg.SweepInterval)
	})

	if stats != nil {
		g.Go(func() error {
			return runCleanup(gctx, stats, cfg.Analytics.Retention, logger)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", xslog.Duration(cfg.ShutdownGrace))

		cancelBase()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		srv.closeSessions()
		return nil
	})

	return g.Wait()
}

// runCleanup removes analytics older than retention at startup and daily.
func runCleanup(ctx context.Context, stats *analytics.Store, retention time.Duration, logger *slog.Logger) error {
	clean := func() {
		n, err := stats.Cleanup(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				logger.ErrorContext(ctx, "error cleaning up old visitor data", xslog.Error(err))
			}
			return
		}
		if n > 0 {
			logger.InfoContext(ctx, "privacy cleanup removed old analytics", xslog.Rows(n))
		}
	}

	clean()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			clean()
		}
	}
}
