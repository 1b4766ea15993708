// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/internal/config"
	"github.com/xkilldash9x/gatecrash/internal/observability"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "gatecrash",
	Short:   "Gatecrash detects and resolves anti-automation challenges on web pages.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			basicLogger, _ := zap.NewDevelopment()
			basicLogger.Error("Failed to initialize configuration", zap.Error(err))
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}

		if err := config.Load(viper.GetViper()); err != nil {
			observability.InitializeLogger(config.LoggerConfig{
				Level: "info", Format: "console", ServiceName: "gatecrash",
			})
			return fmt.Errorf("invalid configuration: %w", err)
		}

		cfg := config.Get()
		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Info("Starting gatecrash", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command with the process context so Ctrl-C unwinds
// an in-flight resolution cleanly.
func Execute(ctx context.Context) error {
	rootCmd.AddCommand(newSolveCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			if ctx.Err() == nil {
				logger.Error("Command execution failed", zap.Error(err))
			}
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
}

// initializeConfig reads the config file and environment variables.
func initializeConfig() error {
	setDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("GATECRASH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Secrets arrive via environment, never the config file.
	_ = viper.BindEnv("recognition.cloud_vision.api_key", "GATECRASH_VISION_API_KEY")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults plus environment carry the run.
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "gatecrash")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)

	v.SetDefault("solver.max_attempts", 3)
	v.SetDefault("solver.max_rounds", 5)
	v.SetDefault("solver.timeout", "90s")
	v.SetDefault("solver.confidence_threshold", 0.3)
	v.SetDefault("solver.preferred_modality", "image")

	v.SetDefault("recognition.local_model.input_size", 320)
	v.SetDefault("recognition.local_model.score_floor", 0.25)
	v.SetDefault("recognition.cloud_vision.model", "gpt-4o-mini")
	v.SetDefault("recognition.cloud_vision.timeout", "30s")
	v.SetDefault("recognition.speech.timeout", "60s")
	v.SetDefault("recognition.speech.language", "en")
	v.SetDefault("recognition.ocr.binary", "tesseract")
	v.SetDefault("recognition.ocr.timeout", "20s")
	v.SetDefault("recognition.ocr.preprocess", true)
}
