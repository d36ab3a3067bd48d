package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	httpctrl "github.com/secmon-lab/synapse/pkg/controller/http"
	"github.com/secmon-lab/synapse/pkg/utils/async"
	"github.com/secmon-lab/synapse/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	rt := runtime{integrations: true}

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("SYNAPSE_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, rt.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP API server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := rt.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			var dispatcher async.Dispatcher
			var httpOpts []httpctrl.Options
			if rt.slackCfg.IsWebhookConfigured() {
				handler := httpctrl.NewSlackWebhookHandler(uc.Slack, &dispatcher)
				httpOpts = append(httpOpts, httpctrl.WithSlackWebhook(handler, rt.slackCfg.SigningSecret()))
				logging.Default().Info("Slack webhook handler enabled")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc, httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)
			case <-ctx.Done():
				logging.Default().Info("Context canceled, shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			// ingestion of accepted Slack events must finish before the store closes
			if err := dispatcher.Wait(shutdownCtx); err != nil {
				logging.Default().Warn("background handlers did not finish", "error", err)
			}

			logging.Default().Info("Server shutdown completed")
			return nil
		},
	}
}
