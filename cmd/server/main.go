package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"camview/internal/config"
	"camview/internal/constants"
	"camview/internal/logger"
	"camview/internal/server"
	"camview/internal/utils"
)

var (
	configPath string
	showQR     bool

	rootCmd = &cobra.Command{
		Use:   constants.AppName,
		Short: "Camera frame ingestion and live viewer",
		Long: `camview receives JPEG frames from a camera device, labels them with
Google Cloud Vision, alerts an operator over Telegram and streams the live
view to logged-in browsers.

Settings come from the environment, a .env file and an optional YAML file.

Examples:
  camview                        # Run with settings from the environment
  camview --config camview.yaml  # Fill unset keys from a YAML file
  camview --qr                   # Also print the viewer URL as a QR code`,
		SilenceUsage: true,
		RunE:         run,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", constants.AppName, constants.Version)
		},
	}
)

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"YAML file with configuration keys")
	rootCmd.Flags().BoolVar(&showQR, "qr", false,
		"Print the viewer URL as a terminal QR code")
	rootCmd.AddCommand(versionCmd)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := server.NewServer(ctx, cfg, server.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	url := viewerURL(cfg)
	log.Info("🚀 camview server starting", "addr", cfg.Addr(), "url", url, "version", constants.Version)
	if showQR {
		if err := printQR(cmd, url); err != nil {
			log.Warn("failed to render QR code", "error", err)
		}
	}

	return s.Run(ctx)
}

func viewerURL(cfg *config.Config) string {
	if cfg.PublicURL != "" {
		return cfg.PublicURL
	}
	scheme := "http"
	if cfg.UseTLS() {
		scheme = "https"
	}
	return utils.ConstructURL(scheme, net.JoinHostPort(utils.LANAddress(), cfg.Port), "/")
}

func printQR(cmd *cobra.Command, url string) error {
	q, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), q.ToSmallString(false))
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
