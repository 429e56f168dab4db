package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/form-digitizer/internal/app"
	"github.com/joseph-ayodele/form-digitizer/internal/common"
)

// v holds defaults, the environment and any flag set on the command line.
var v *viper.Viper

var rootCmd = &cobra.Command{
	Use:          "formctl",
	Short:        "Digitize scanned forms from the command line",
	Long:         `Extract template fields from form images and manage saved form records.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		v, err = common.NewViper()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		for key, name := range map[string]string{
			"db_url":         "db-url",
			"llm_provider":   "provider",
			"llm_model":      "model",
			"templates_path": "templates",
			"log_level":      "log-level",
			"log_format":     "log-format",
		} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return fmt.Errorf("bind --%s: %w", name, err)
				}
			}
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("db-url", "", "record store DSN: postgres:// URL or SQLite path (env DB_URL)")
	pf.String("provider", "", "document analysis provider: gemini, openai or offline (env LLM_PROVIDER)")
	pf.String("model", "", "provider model (env LLM_MODEL)")
	pf.String("templates", "", "template catalog YAML, built-in catalog when empty (env TEMPLATES_PATH)")
	pf.String("log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	pf.String("log-format", "", "text or json (env LOG_FORMAT)")
}

// load builds the app from the bound configuration. Logs go to stderr so
// command output stays machine readable.
func load(cmd *cobra.Command, withDB bool) (*app.App, error) {
	cfg := common.FromViper(v)
	logger := common.NewLogger(cmd.ErrOrStderr(), cfg.Log)
	return app.New(cmd.Context(), cfg, logger, withDB)
}
