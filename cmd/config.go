package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/graniet/kheish/internal/llm"
)

const (
	configName = ".kheish"
	envPrefix  = "KHEISH"
)

// InitConfig reads in the config file and ENV variables if set, then
// configures logging.
func InitConfig() {
	// Load .env first so provider API keys are visible.
	_ = godotenv.Load()

	viper.SetEnvPrefix(envPrefix) // e.g. KHEISH_VERBOSE
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if flagFile := viper.GetString("config"); flagFile != "" {
		viper.SetConfigFile(flagFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home) // $HOME/.kheish.yaml
		}
		viper.AddConfigPath(".") // ./.kheish.yaml
		viper.SetConfigName(configName)
	}

	viper.SetDefault("database.path", "kheish.db")
	viper.SetDefault("tasks.dir", "tasks")
	viper.SetDefault("llm.provider", llm.DefaultProvider)
	viper.SetDefault("llm.model", "")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintln(os.Stderr, "Error reading config file:", viper.ConfigFileUsed(), "-", err)
		}
	} else if viper.GetBool("verbose") {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// appClient builds a chat client from the app-level llm settings. Used
// by commands that talk to a model outside any task config, such as
// task generation.
func appClient(ctx context.Context, provider, model string) (*llm.Client, error) {
	if provider == "" {
		provider = viper.GetString("llm.provider")
	}
	if model == "" {
		model = viper.GetString("llm.model")
	}
	if model == "" {
		model = llm.DefaultModelForProvider(provider)
	}
	if _, err := llm.ValidateProvider(provider); err != nil {
		return nil, err
	}
	return llm.NewClient(ctx, llm.Config{
		Provider: provider,
		Model:    model,
		APIKey:   llm.APIKeyFromEnv(provider),
	})
}
