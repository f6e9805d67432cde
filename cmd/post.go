// File: cmd/post.go
package cmd

import (
	"errors"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crosslister/postflow/api/schemas"
	"github.com/crosslister/postflow/internal/observability"
	"github.com/crosslister/postflow/internal/report"
	"github.com/crosslister/postflow/internal/workflow"
)

var (
	postURL     string
	payloadFile string
	pageKey     string
	resumeFrom  string
)

// postCmd runs one posting workflow against a local browser and exits.
var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Run a single create-listing workflow against a local browser.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.GetLogger()
		defer observability.Sync()

		payload, err := readPayload(payloadFile)
		if err != nil {
			return err
		}
		key := pageKey
		if key == "" {
			key = postURL
		}

		orch, cleanup, err := buildEngine(cmd.Context(), appCfg, postURL, key, report.NopReporter{}, log)
		if err != nil {
			return err
		}
		defer cleanup()

		if resumeFrom != "" {
			return orch.Resume(cmd.Context(), schemas.StepID(resumeFrom), payload)
		}
		err = orch.Start(cmd.Context(), payload)
		if errors.Is(err, workflow.ErrLoginRequired) {
			log.Warn("Current page is a login page; log in first, then re-run.", zap.String("url", postURL))
			return err
		}
		return err
	},
}

func readPayload(path string) (schemas.ListingPayload, error) {
	var payload schemas.ListingPayload
	if path == "" {
		return payload, fmt.Errorf("--payload is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return payload, fmt.Errorf("read payload file: %w", err)
	}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("parse payload file: %w", err)
	}
	return payload, nil
}

func init() {
	postCmd.Flags().StringVar(&postURL, "url", "", "create-listing page URL (required)")
	postCmd.Flags().StringVar(&payloadFile, "payload", "", "path to the listing payload JSON file (required)")
	postCmd.Flags().StringVar(&pageKey, "page-key", "", "durable state key (defaults to the URL)")
	postCmd.Flags().StringVar(&resumeFrom, "resume-from", "", "resume from a persisted mid-flow step instead of starting over")
	_ = postCmd.MarkFlagRequired("url")
	_ = postCmd.MarkFlagRequired("payload")
	rootCmd.AddCommand(postCmd)
}
