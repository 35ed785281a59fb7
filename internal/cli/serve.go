package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ronalddlopez/housecat/internal/config"
	"github.com/ronalddlopez/housecat/internal/logging"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live streams and optional local scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if port > 0 {
				cfg.HTTPPort = port
			}

			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			return app.Serve(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides HTTP_PORT)")
	return cmd
}
