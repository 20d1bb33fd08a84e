// serve.go implements "genstory serve", the HTTP front end.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhs007/genstory/internal/event"
	"github.com/zhs007/genstory/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the story studio over HTTP",
	Long: `Start the HTTP API with a server-sent event stream per session.
Stops gracefully on SIGINT or SIGTERM, letting running stages finish.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var addrFlag string

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (default: server.host:server.port from config)")
}

const shutdownTimeout = 30 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if res := cfg.Validate(); !res.Valid {
		return fmt.Errorf("invalid config: %v", res.Errors)
	}
	logger := newLogger(cfg)

	broker := event.NewBroker(0)
	p, err := newPipeline(cfg, logger, broker, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	addr := addrFlag
	if addr == "" {
		addr = net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	}
	srv, err := server.NewServer(server.Options{
		Addr:     addr,
		Pipeline: p.Orchestrator,
		Broker:   broker,
		Config:   cfg,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	logger.Info("server listening", "addr", srv.Addr(), "genre", p.Genre(), "store", cfg.Store.Driver)
	fmt.Fprintf(cmd.OutOrStdout(), "Story studio listening on http://%s\n", srv.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(srv.Stop(shutdownCtx), p.Shutdown(shutdownCtx))
}
