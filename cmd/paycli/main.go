package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "paycli",
		Short:         "paycli - pay through the merchant portal from a terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}
	rootCmd.PersistentFlags().String("server", "http://localhost:8099", "Portal base URL")
	rootCmd.PersistentFlags().String("config", "", "Config file (default $HOME/.dovepay.yaml)")
	rootCmd.PersistentFlags().Duration("http-timeout", 30*time.Second, "Timeout for each HTTP request")

	rootCmd.AddCommand(payCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// initConfig layers flags over DOVEPAY_* environment variables over the config file.
func initConfig(cmd *cobra.Command) error {
	viper.SetEnvPrefix("DOVEPAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigName(".dovepay")
		viper.SetConfigType("yaml")
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && viper.GetString("config") != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}
