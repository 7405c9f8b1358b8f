package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/layerv/qurl-slack-bot/cmd/qurlbot/botcmd"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "qurlbot",
		Short:         "Slack bot that turns natural-language requests into LayerV proxy links",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default searches ./qurlbot.yaml, $HOME/.qurlbot/qurlbot.yaml).")
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(botcmd.NewCommand(botcmd.Dependencies{
		LoggerFromViper: loggerFromViper,
	}))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("qurlbot")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.qurlbot")
		}
	}
	viper.SetEnvPrefix("QURLBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("layerv.api_url", "https://api.layerv.com")
	viper.SetDefault("qurl.default_expires_in", "24h")
	viper.SetDefault("qurl.request_timeout", "30s")
	viper.SetDefault("anthropic.max_tokens", 500)
	viper.SetDefault("anthropic.request_timeout", "30s")
	viper.SetDefault("bot.max_concurrency", 4)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
	}
}

func loggerFromViper() (*slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(viper.GetString("log.level"))) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log.level: %s", viper.GetString("log.level"))
	}

	switch strings.ToLower(strings.TrimSpace(viper.GetString("log.format"))) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})), nil
	case "text", "":
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: level})), nil
	default:
		return nil, fmt.Errorf("invalid log.format: %s", viper.GetString("log.format"))
	}
}
