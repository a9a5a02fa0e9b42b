package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	slackapi "github.com/slack-go/slack"
	"github.com/spf13/cobra"

	kerrors "github.com/harunnryd/kakari/internal/errors"
	"github.com/harunnryd/kakari/internal/gateway/notion"
	slackgw "github.com/harunnryd/kakari/internal/gateway/slack"
	"github.com/harunnryd/kakari/internal/oracle"
	"github.com/harunnryd/kakari/internal/report"
	"github.com/harunnryd/kakari/internal/rowstore"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Draft a report from CSV data and a Notion template",
	Long: `Feeds CSV exports and a Notion-hosted Markdown template to the model,
publishes the draft to Notion, and posts a summary to Slack.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}
		if cfg.Oracle.APIKey == "" {
			return kerrors.Configuration("oracle.api_key is required")
		}
		if cfg.Notion.Token == "" {
			return kerrors.Configuration("notion.token is required")
		}

		title, _ := cmd.Flags().GetString("title")
		templateURL, _ := cmd.Flags().GetString("template-url")
		outputURL, _ := cmd.Flags().GetString("output-url")
		channel, _ := cmd.Flags().GetString("channel")
		mention, _ := cmd.Flags().GetString("mention")
		csvArgs, _ := cmd.Flags().GetStringArray("csv")

		sources, err := readCSVSources(csvArgs)
		if err != nil {
			return err
		}

		rows, err := rowstore.New(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open row store: %w", err)
		}
		defer rows.Close()

		model, err := oracle.New(cfg.Oracle, rows)
		if err != nil {
			return fmt.Errorf("configure oracle: %w", err)
		}

		var poster report.Messenger = discardMessenger{}
		if channel != "" {
			if cfg.Slack.BotToken == "" {
				return kerrors.Configuration("slack.bot_token is required when --channel is set")
			}
			poster = slackgw.NewPoster(cfg.Slack.BotToken, slog.Default())
		}

		pipeline := report.New(model, notion.New(cfg.Notion.Token), poster, slog.Default())
		draft, err := pipeline.Run(cmd.Context(), report.Input{
			Title:        title,
			TemplateURL:  templateURL,
			OutputURL:    outputURL,
			SlackChannel: channel,
			Mention:      mention,
			CSVSources:   sources,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), draft)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("title", "Report", "title of the published Notion page")
	reportCmd.Flags().String("template-url", "", "Notion page URL holding the Markdown template")
	reportCmd.Flags().String("output-url", "", "Notion page URL the draft is published under")
	reportCmd.Flags().String("channel", "", "Slack channel ID for the summary post (optional)")
	reportCmd.Flags().String("mention", "", "mention to prepend to the Slack post, e.g. <@U123>")
	reportCmd.Flags().StringArray("csv", nil, "CSV source as label=path; repeatable")
	reportCmd.MarkFlagRequired("template-url")
	reportCmd.MarkFlagRequired("output-url")
}

// readCSVSources loads label=path CSV flags into memory.
func readCSVSources(specs []string) (map[string]string, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	sources := make(map[string]string, len(specs))
	for _, spec := range specs {
		label, path, ok := strings.Cut(spec, "=")
		if !ok || label == "" || path == "" {
			return nil, fmt.Errorf("invalid --csv value %q, expected label=path", spec)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read csv %s: %w", path, err)
		}
		sources[label] = string(data)
	}
	return sources, nil
}

type discardMessenger struct{}

func (discardMessenger) Post(context.Context, string, string, []slackapi.Block, string) error {
	return nil
}
