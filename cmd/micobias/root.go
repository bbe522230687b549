package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"micobias/internal/logger"
)

var (
	logLevel string
	log      zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "micobias",
	Short: "Bias field correction for MRI volumes",
	Long: `micobias estimates the smooth intensity inhomogeneity (bias field) of
each axial slice of an MRI volume with multiplicative intrinsic component
optimization and writes the corrected volume.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger(logLevel)
	},
}

func setupLogger(level string) error {
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return err
	}
	log = logger.NewConsole(lvl)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}
