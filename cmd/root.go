package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/birdnet-scout/cmd/analyze"
	"github.com/tphakala/birdnet-scout/cmd/observations"
	"github.com/tphakala/birdnet-scout/cmd/rangefilter"
	"github.com/tphakala/birdnet-scout/cmd/serve"
	"github.com/tphakala/birdnet-scout/internal/buildinfo"
	"github.com/tphakala/birdnet-scout/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "birdnet-scout",
		Short:         "BirdNET-Scout bird observation service",
		Version:       build.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		// flag binding only fails on programming errors
		panic(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings, build),
		analyze.Command(settings),
		rangefilter.Command(settings),
		observations.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().Float64Var(&settings.BirdNET.Latitude, "latitude", viper.GetFloat64("birdnet.latitude"), "Fallback latitude when no location is stored")
	rootCmd.PersistentFlags().Float64Var(&settings.BirdNET.Longitude, "longitude", viper.GetFloat64("birdnet.longitude"), "Fallback longitude when no location is stored")
	rootCmd.PersistentFlags().StringVar(&settings.Analyzer.ClipKeyMode, "clipkeymode", viper.GetString("analyzer.clipkeymode"), "Clip name key mode (duration or end)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
