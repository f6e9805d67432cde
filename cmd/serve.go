// File: cmd/serve.go
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crosslister/postflow/internal/observability"
	"github.com/crosslister/postflow/internal/report"
	"github.com/crosslister/postflow/internal/rpc"
)

var (
	serveURL     string
	servePageKey string
)

// serveCmd attaches the engine to a listing page and serves the typed RPC
// surface over NATS until interrupted. Progress events are published to the
// event subjects as runs execute.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the posting RPC surface over NATS for an external controller.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.GetLogger()
		defer observability.Sync()

		nc, err := nats.Connect(appCfg.Transport.NATSURL, nats.Name("postflow"))
		if err != nil {
			return fmt.Errorf("connect NATS at %s: %w", appCfg.Transport.NATSURL, err)
		}
		defer nc.Drain() //nolint:errcheck

		key := servePageKey
		if key == "" {
			key = serveURL
		}
		reporter := report.NewNATSReporter(nc, appCfg.Transport.SubjectPrefix, log)
		orch, cleanup, err := buildEngine(cmd.Context(), appCfg, serveURL, key, reporter, log)
		if err != nil {
			return err
		}
		defer cleanup()

		server := rpc.NewServer(nc, appCfg.Transport.SubjectPrefix, rpc.NewHandlers(orch, log), log)
		if err := server.Serve(cmd.Context()); err != nil {
			return err
		}
		defer server.Close()

		log.Info("Engine ready.",
			zap.String("url", serveURL),
			zap.String("subject_prefix", appCfg.Transport.SubjectPrefix))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sig:
			log.Info("Shutting down.")
		case <-cmd.Context().Done():
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveURL, "url", "", "create-listing page URL (required)")
	serveCmd.Flags().StringVar(&servePageKey, "page-key", "", "durable state key (defaults to the URL)")
	_ = serveCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(serveCmd)
}
