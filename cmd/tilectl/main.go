// Command tilectl inspects tile selection and cache behaviour without a
// running server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pyramidview/internal/logger"
)

var (
	optLogLevel string
	log         = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "tilectl",
	Short:         "Explore pyramid tile indexing and caching",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logger.New(optLogLevel, "console")
		if err != nil {
			return err
		}
		log = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&optLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
