// Package rangefilter holds the range model commands.
package rangefilter

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-scout/internal/conf"
)

// Command creates the range parent command
func Command(settings *conf.Settings) *cobra.Command {
	rangeCmd := &cobra.Command{
		Use:   "range",
		Short: "Inspect the location prior computed by the range model",
	}

	rangeCmd.AddCommand(PrintCommand(settings))

	return rangeCmd
}
