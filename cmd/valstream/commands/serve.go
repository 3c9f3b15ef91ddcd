package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/valstream/am"
	"github.com/teranos/valstream/engine"
	"github.com/teranos/valstream/logger"
	"github.com/teranos/valstream/server"
	"github.com/teranos/valstream/sym"
)

// ServeCmd starts the HTTP front end
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the HTTP front end",
	Long: `Start the HTTP server exposing POST /run, /ws/run, /metrics and /healthz.

When started with --config the file is watched and a valid new configuration
is applied to later runs without a restart.`,
	RunE: runServe,
}

var servePort int

func init() {
	ServeCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Logger
	e, err := engine.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer e.Close()

	if ConfigPath != "" {
		watcher, err := am.NewConfigWatcher(ConfigPath)
		if err != nil {
			log.Warnw("Config hot reload disabled", logger.FieldError, err)
		} else {
			watcher.OnReload(func(next *am.Config) error {
				if servePort != 0 {
					next.Server.Port = servePort
				}
				if err := e.Reconfigure(next); err != nil {
					log.Warnw("Rejected reloaded configuration", logger.FieldError, err)
					return err
				}
				log.Infow(sym.Config+" Configuration reloaded", "path", ConfigPath)
				return nil
			})
			am.SetGlobalWatcher(watcher)
			watcher.Start()
			defer watcher.Stop()
		}
	}

	pterm.Info.Printf("Listening on :%d\n", cfg.Server.Port)
	if err := server.New(e, log).ListenAndServe(ctx, cfg.Server); err != nil {
		return err
	}
	pterm.Success.Println("Server stopped cleanly")
	return nil
}
