package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abhisek/quizforge/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and generation workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd, "")
		if err != nil {
			return err
		}
		defer rt.Close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			rt.cfg.Server.Addr = addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, rt.cfg, rt.store, rt.log)
		if err != nil {
			return fmt.Errorf("build app: %w", err)
		}
		defer a.Close()

		rt.log.Info("quizforge starting", "version", version, "addr", rt.cfg.Server.Addr)
		if err := a.Serve(ctx); err != nil {
			return err
		}
		rt.log.Info("quizforge stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
}
