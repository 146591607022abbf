package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hookrelay/internal/config"
	"hookrelay/internal/constants"
	"hookrelay/internal/logger"
	"hookrelay/internal/server"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           constants.AppName,
		Short:         "Capture webhook calls and stream them to the browser",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}

			log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			s, err := server.New(cfg, log)
			if err != nil {
				log.Error("Failed to initialize server", zap.Error(err))
				return err
			}
			return s.Run(cmd.Context())
		},
	}

	d := config.Default()
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "path to a YAML config file")
	f.String("host", d.Host, "interface to listen on (empty for all)")
	f.Int("port", d.Port, "HTTP port")
	f.String("static-dir", d.StaticDir, "directory of static files to serve")
	f.Int("tls-port", 0, "HTTPS port (0 disables TLS)")
	f.String("tls-cert", "", "TLS certificate file")
	f.String("tls-key", "", "TLS key file")
	f.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	f.String("log-format", d.Log.Format, fmt.Sprintf("log format (%s, %s)", logger.FormatConsole, logger.FormatJSON))
	f.Bool("enable-policy-updates", false, "allow control requests to change the response policy")

	return cmd
}
