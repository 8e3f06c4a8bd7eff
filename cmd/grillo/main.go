package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "grillo",
	Short: "Streaming conversation persistence playground",
	Long: `grillo builds a conversation tree out of system, user and assistant
messages, streams assistant tokens as they are generated and persists every
message with debounced background writes.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
	SilenceUsage: true,
}

func initLogging() error {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level)
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store", "", "Pebble store directory (empty: in-memory)")
	rootCmd.PersistentFlags().Int("flush-tokens", 0, "Fragment count threshold for debounced writes (0: default)")
	rootCmd.PersistentFlags().Duration("flush-interval", 0, "Elapsed time threshold for debounced writes (0: default)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("GRILLO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newReplayCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
