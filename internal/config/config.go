package config

import (
	"os"
	"path/filepath"
	"strings"

	kerrors "github.com/harunnryd/kakari/internal/errors"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Oracle       OracleConfig       `koanf:"oracle"`
	Slack        SlackConfig        `koanf:"slack"`
	Sheets       SheetsConfig       `koanf:"sheets"`
	Calendar     CalendarConfig     `koanf:"calendar"`
	Notion       NotionConfig       `koanf:"notion"`
	Store        StoreConfig        `koanf:"store"`
	Conversation ConversationConfig `koanf:"conversation"`
	Scheduler    SchedulerConfig    `koanf:"scheduler"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

type OracleConfig struct {
	Provider       string `koanf:"provider"` // "gemini", "openai", "anthropic"
	Model          string `koanf:"model"`
	APIKey         string `koanf:"api_key"`
	BaseURL        string `koanf:"base_url"`
	RequestTimeout string `koanf:"request_timeout"`
}

type SlackConfig struct {
	SigningSecret string `koanf:"signing_secret"`
	BotToken      string `koanf:"bot_token"`
	BotUserID     string `koanf:"bot_user_id"`
}

type SheetsConfig struct {
	CredentialsFile       string `koanf:"credentials_file"`
	ControllerSpreadsheet string `koanf:"controller_spreadsheet"`
	ControllerSheet       string `koanf:"controller_sheet"`
	RosterSheet           string `koanf:"roster_sheet"`
	TaskSheet             string `koanf:"task_sheet"`
	RoutineSheet          string `koanf:"routine_sheet"`
}

type CalendarConfig struct {
	CredentialsFile string   `koanf:"credentials_file"`
	CalendarIDs     []string `koanf:"calendar_ids"`
	OrganizerEmail  string   `koanf:"organizer_email"`
}

type NotionConfig struct {
	Token string `koanf:"token"`
}

type StoreConfig struct {
	Path string `koanf:"path"`
}

type ConversationConfig struct {
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	HistoryLimit        int     `koanf:"history_limit"`
	MaxListedTasks      int     `koanf:"max_listed_tasks"`
	TasksPerMessage     int     `koanf:"tasks_per_message"`
}

type SchedulerConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ReminderSpec string `koanf:"reminder_spec"`
	RoutineSpec  string `koanf:"routine_spec"`
}

const (
	DefaultServerPort            = 3000
	DefaultServerLogLevel        = "info"
	DefaultServerReadTimeout     = "10s"
	DefaultServerWriteTimeout    = "10s"
	DefaultServerShutdownTimeout = "5s"

	DefaultOracleProvider       = "gemini"
	DefaultOracleModel          = "gemini-2.5-pro"
	DefaultOracleRequestTimeout = "120s"

	DefaultControllerSheet = "TaskReminderController"
	DefaultRosterSheet     = "User"
	DefaultTaskSheet       = "Tasks"
	DefaultRoutineSheet    = "Routine"

	DefaultConfidenceThreshold = 0.7
	DefaultHistoryLimit        = 30
	DefaultMaxListedTasks      = 50
	DefaultTasksPerMessage     = 10

	DefaultReminderSpec = "0 9 * * MON-FRI"
	DefaultRoutineSpec  = "0 7 * * *"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                      DefaultServerPort,
		"server.log_level":                 DefaultServerLogLevel,
		"server.read_timeout":              DefaultServerReadTimeout,
		"server.write_timeout":             DefaultServerWriteTimeout,
		"server.shutdown_timeout":          DefaultServerShutdownTimeout,
		"oracle.provider":                  DefaultOracleProvider,
		"oracle.model":                     DefaultOracleModel,
		"oracle.request_timeout":           DefaultOracleRequestTimeout,
		"sheets.controller_sheet":          DefaultControllerSheet,
		"sheets.roster_sheet":              DefaultRosterSheet,
		"sheets.task_sheet":                DefaultTaskSheet,
		"sheets.routine_sheet":             DefaultRoutineSheet,
		"store.path":                       defaultStorePath(),
		"conversation.confidence_threshold": DefaultConfidenceThreshold,
		"conversation.history_limit":        DefaultHistoryLimit,
		"conversation.max_listed_tasks":     DefaultMaxListedTasks,
		"conversation.tasks_per_message":    DefaultTasksPerMessage,
		"scheduler.enabled":                 true,
		"scheduler.reminder_spec":           DefaultReminderSpec,
		"scheduler.routine_spec":            DefaultRoutineSpec,
	}
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	// Config file: --config flag, then ~/.kakari/config.yaml.
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, kerrors.Wrap(err, "load config file")
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		globalPath := filepath.Join(home, ".kakari", "config.yaml")
		if _, err := os.Stat(globalPath); err == nil {
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				return nil, kerrors.Wrap(err, "load global config file")
			}
		}
	}

	// Environment overrides: KAKARI_SLACK_BOT_TOKEN -> slack.bot_token
	k.Load(env.Provider("KAKARI_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "KAKARI_")), "_", ".", 1)
	}), nil)

	// Flag overrides
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, kerrors.Wrap(err, "unmarshal config")
	}

	applyEnvFallbacks(&cfg)
	return &cfg, nil
}

func applyEnvFallbacks(cfg *Config) {
	if cfg.Oracle.APIKey == "" {
		switch cfg.Oracle.Provider {
		case "openai":
			cfg.Oracle.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.Oracle.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			cfg.Oracle.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if cfg.Slack.SigningSecret == "" {
		cfg.Slack.SigningSecret = os.Getenv("SLACK_SIGNING_SECRET")
	}
	if cfg.Slack.BotToken == "" {
		cfg.Slack.BotToken = os.Getenv("SLACK_BOT_TOKEN")
	}
	if cfg.Notion.Token == "" {
		cfg.Notion.Token = os.Getenv("NOTION_TOKEN")
	}
}

// ValidateServe checks the configuration required to run the daemon.
func (c *Config) ValidateServe() error {
	if c.Slack.BotToken == "" {
		return kerrors.Configuration("slack.bot_token is required")
	}
	if c.Slack.SigningSecret == "" {
		return kerrors.Configuration("slack.signing_secret is required")
	}
	if c.Oracle.APIKey == "" {
		return kerrors.Configuration("oracle.api_key is required")
	}
	if c.Sheets.ControllerSpreadsheet == "" {
		return kerrors.Configuration("sheets.controller_spreadsheet is required")
	}
	return nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kakari"
	}
	return filepath.Join(home, ".kakari", "state")
}
