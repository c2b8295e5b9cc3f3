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

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/bloodlens/internal/api"
	"github.com/kalambet/bloodlens/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bloodlens HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")
		mcp, _ := cmd.Flags().GetBool("mcp")
		return runServer(host, port, mcp)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bloodlens server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("host", "127.0.0.1", "address to listen on")
	serveCmd.Flags().Int("port", 0, "port to listen on (default from server.port)")
	serveCmd.Flags().Bool("mcp", false, "also serve MCP on stdio")
}

func runServer(host string, port int, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "bloodlens version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := api.Deps{
		Analyzer:       a.orch,
		Store:          a.store,
		Token:          cfg.Server.APIToken,
		MaxUploadBytes: int64(cfg.Server.MaxUploadBytes),
		Provider:       cfg.Reasoning.Provider,
		Version:        version,
	}
	if a.store == nil {
		slog.Info("report history disabled")
	} else if cfg.Server.APIToken == "" {
		slog.Warn("report history endpoints are not protected; set BLOODLENS_API_TOKEN")
	}

	addr := net.JoinHostPort(host, fmt.Sprint(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("bloodlens listening", "addr", addr, "provider", cfg.Reasoning.Provider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      cfg.Server.APIToken,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	health, err := fetchHealth(ctx, client)
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		printStatus("Server", "running on port %d", cfg.Server.Port)
		printStatus("Provider", "%s", health.Provider)
		if health.History {
			printStatus("Reports", "%d", health.Reports)
		} else {
			printStatus("Reports", "history disabled")
		}
	}

	if err := cfg.Validate(); err != nil {
		printWarning("%v", err)
	}
	printStatus("Provider (config)", "%s", cfg.Reasoning.Provider)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func fetchHealth(ctx context.Context, c *apiClient) (api.HealthResponse, error) {
	var h api.HealthResponse
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return h, err
	}
	err = decodeJSON(resp, &h)
	return h, err
}
