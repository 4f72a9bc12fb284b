package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lmforge/tgen/api"
	"github.com/lmforge/tgen/config"
	"github.com/lmforge/tgen/device"
	"github.com/lmforge/tgen/engine"
	"github.com/lmforge/tgen/registry"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  "Start the tgen HTTP API server for remote generation requests.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (default from TGEN_ADDR or :11434)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveAddr == "" {
		serveAddr = cfg.Addr
	}

	mgr, err := registry.NewModelManager(cfg.BaseDir, registry.WithPullHost(cfg.PullHost))
	if err != nil {
		return fmt.Errorf("init model manager: %w", err)
	}

	eng := engine.New(device.Detect())
	defer eng.Close()

	srv := api.NewServer(eng, mgr, api.Options{
		Addr:           serveAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		DefaultModel:   cfg.DefaultModel,
	})
	return srv.Start()
}
