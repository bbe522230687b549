package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"micobias/pkg/config"
	"micobias/pkg/driver"
	"micobias/pkg/visualization"
	"micobias/pkg/volumeio"
)

var (
	inputPath  string
	outputPath string
	configPath string
	biasPath   string
	labelsPath string
	reportPath string
	previewDir string

	classes   int
	fuzzifier float64
	outer     int
	inner     int
	threshold string
	workers   int
	seed      int64
)

var correctCmd = &cobra.Command{
	Use:   "correct",
	Short: "Estimate and remove the bias field of a volume",
	Long: `Reads a NIfTI or .npy volume, corrects every axial slice independently
and writes the corrected volume as .npy. The bias field, a tissue label map,
a per-slice CSV report and PNG previews are written when their paths are set.`,
	RunE: runCorrect,
}

func init() {
	correctCmd.Flags().StringVar(&inputPath, "input", "", "Input volume (.nii, .nii.gz or .npy, required)")
	correctCmd.Flags().StringVar(&outputPath, "output", "corrected.npy", "Corrected volume output (.npy)")
	correctCmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file")
	correctCmd.Flags().StringVar(&biasPath, "bias", "", "Bias field output (.npy)")
	correctCmd.Flags().StringVar(&labelsPath, "labels", "", "Tissue label map output (.npy), 0 outside the ROI")
	correctCmd.Flags().StringVar(&reportPath, "report", "", "Per-slice CSV report")
	correctCmd.Flags().StringVar(&previewDir, "preview-dir", "", "Directory for PNG previews of the corrected slices")

	correctCmd.Flags().IntVar(&classes, "classes", 3, "Number of tissue classes")
	correctCmd.Flags().Float64Var(&fuzzifier, "q", 1, "Fuzzifier, 1 for hard memberships")
	correctCmd.Flags().IntVar(&outer, "outer", 15, "Outer iterations")
	correctCmd.Flags().IntVar(&inner, "inner", 2, "Inner membership/constant iterations")
	correctCmd.Flags().StringVar(&threshold, "threshold", "auto", "ROI threshold: auto or a number")
	correctCmd.Flags().IntVar(&workers, "workers", 0, "Concurrent slices, 0 uses every CPU")
	correctCmd.Flags().Int64Var(&seed, "seed", 1, "Random seed for class initialization")

	correctCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(correctCmd)
}

// applyFlags copies explicitly set flags over the loaded configuration
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("classes") {
		cfg.Mico.Classes = classes
	}
	if flags.Changed("q") {
		cfg.Mico.Fuzzifier = fuzzifier
	}
	if flags.Changed("outer") {
		cfg.Mico.OuterIters = outer
	}
	if flags.Changed("inner") {
		cfg.Mico.InnerIters = inner
	}
	if flags.Changed("threshold") {
		cfg.ROI.Threshold = threshold
	}
	if flags.Changed("workers") {
		cfg.Processing.NumWorkers = workers
	}
	if flags.Changed("seed") {
		cfg.Mico.Seed = seed
	}
	if flags.Changed("bias") {
		cfg.Output.BiasFile = biasPath
	}
	if flags.Changed("labels") {
		cfg.Output.LabelsFile = labelsPath
	}
	if flags.Changed("report") {
		cfg.Output.ReportFile = reportPath
	}
	if flags.Changed("preview-dir") {
		cfg.Output.PreviewDir = previewDir
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		var err error
		if cfg, err = config.LoadConfig(configPath); err != nil {
			return nil, err
		}
	}
	applyFlags(cmd, cfg)

	if !cmd.Flags().Changed("log-level") && cfg.Output.LogLevel != "" {
		if err := setupLogger(cfg.Output.LogLevel); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runCorrect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := cfg.DriverOptions()
	if err != nil {
		return err
	}

	vol, err := volumeio.Load(inputPath)
	if err != nil {
		return err
	}
	log.Info().
		Str("input", inputPath).
		Int("width", vol.Width).
		Int("height", vol.Height).
		Int("depth", vol.Depth).
		Msg("loaded volume")

	if cfg.Processing.NormalizeTo > 0 {
		factor := vol.NormalizeMax(cfg.Processing.NormalizeTo)
		log.Debug().Float64("factor", factor).Msg("normalized intensities")
	}

	drv, err := driver.New(opts, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	out, err := drv.Run(ctx, vol)
	if err != nil {
		return fmt.Errorf("bias correction failed: %w", err)
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("correction complete")

	if err := volumeio.Save(outputPath, out.Corrected); err != nil {
		return err
	}
	log.Info().Str("path", outputPath).Msg("saved corrected volume")

	if cfg.Output.BiasFile != "" {
		if err := volumeio.Save(cfg.Output.BiasFile, out.Bias); err != nil {
			return err
		}
		log.Info().Str("path", cfg.Output.BiasFile).Msg("saved bias field")
	}

	if cfg.Output.LabelsFile != "" {
		if err := volumeio.Save(cfg.Output.LabelsFile, out.Labels); err != nil {
			return err
		}
		log.Info().Str("path", cfg.Output.LabelsFile).Msg("saved label map")
	}

	if cfg.Output.ReportFile != "" {
		if err := out.Report.SaveCSV(cfg.Output.ReportFile); err != nil {
			return err
		}
		log.Info().Str("path", cfg.Output.ReportFile).Msg("saved report")
	}

	if cfg.Output.PreviewDir != "" {
		viewer := visualization.NewViewer(out.Corrected, cfg.Output.PreviewScale)
		if err := viewer.SaveSliceSequence("z", cfg.Output.PreviewDir, "corrected"); err != nil {
			return fmt.Errorf("failed to save previews: %w", err)
		}
		if cfg.Output.BiasFile != "" {
			biasViewer := visualization.NewViewer(out.Bias, cfg.Output.PreviewScale)
			if err := biasViewer.SaveSliceSequence("z", cfg.Output.PreviewDir, "bias"); err != nil {
				return fmt.Errorf("failed to save previews: %w", err)
			}
		}
		if cfg.Output.LabelsFile != "" {
			labelViewer := visualization.NewViewer(out.Labels, cfg.Output.PreviewScale)
			labelViewer.SetWindow(0, float64(cfg.Mico.Classes))
			if err := labelViewer.SaveSliceSequence("z", cfg.Output.PreviewDir, "labels"); err != nil {
				return fmt.Errorf("failed to save previews: %w", err)
			}
		}
		log.Info().Str("dir", cfg.Output.PreviewDir).Msg("saved previews")
	}

	if n := len(out.Report.Failures); n > 0 {
		log.Warn().Int("failed", n).Msg("some slices kept an identity bias field")
	}
	return nil
}
