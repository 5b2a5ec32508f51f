package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "xdg-portal-wayfar",
		Short: "xdg-desktop-portal backend that brokers screen capture on Hyprland",
		Long: `xdg-portal-wayfar implements the ScreenCast portal backend interface:
it brokers screen and window capture requests from D-Bus clients (browsers,
conferencing apps, screen recorders) against the compositor's screencopy and
foreign-toplevel protocols, and publishes the resulting frames as a PipeWire
video stream.

It is a background service, activated by xdg-desktop-portal on demand; it is
not meant to be run interactively.`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/xdg-portal-wayfar/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "use human-readable console log output instead of JSON")
	rootCmd.PersistentFlags().String("debug-http-addr", "", "bind the read-only debug HTTP surface to this address (default disabled)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
	viper.BindPFlag("debug_http_addr", rootCmd.PersistentFlags().Lookup("debug-http-addr"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the --config flag value, empty if unset.
func GetConfigFile() string {
	return cfgFile
}
