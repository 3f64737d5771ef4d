package main

import (
	"github.com/spf13/cobra"

	"github.com/handiism/snap-memories/internal/config"
)

// planFlags override the settings that shape a plan.
type planFlags struct {
	output         string
	workDir        string
	manifest       string
	noGPU          bool
	removeArchives bool
}

func (f *planFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output directory (overrides config)")
	cmd.Flags().StringVar(&f.workDir, "work-dir", "", "Directory for downloads and extracted archives")
	cmd.Flags().StringVarP(&f.manifest, "manifest", "m", "", "Manifest supplying capture times for a folder input")
	cmd.Flags().BoolVar(&f.noGPU, "no-gpu", false, "Encode videos in software only")
	cmd.Flags().BoolVar(&f.removeArchives, "remove-archives", false, "Delete archives once every memory from them is done")
}

func (f *planFlags) apply(cmd *cobra.Command, s *config.Settings) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		s.OutputDir = f.output
	}
	if flags.Changed("work-dir") {
		s.WorkDir = f.workDir
	}
	if flags.Changed("manifest") {
		s.ManifestPath = f.manifest
	}
	if f.noGPU {
		s.UseGPU = false
	}
	if f.removeArchives {
		s.RemoveConsumedArchives = true
	}
}

// runFlags add the execution settings.
type runFlags struct {
	planFlags

	dryRun          bool
	downloadWorkers int
	imageWorkers    int
	videoWorkers    int
	retries         int
}

func (f *runFlags) register(cmd *cobra.Command) {
	f.planFlags.register(cmd)
	cmd.Flags().BoolVarP(&f.dryRun, "dry-run", "n", false, "Print what would be done without touching anything")
	cmd.Flags().IntVar(&f.downloadWorkers, "download-workers", 0, "Concurrent downloads")
	cmd.Flags().IntVar(&f.imageWorkers, "image-workers", 0, "Concurrent image and file actions")
	cmd.Flags().IntVar(&f.videoWorkers, "video-workers", 0, "Concurrent video encodes")
	cmd.Flags().IntVar(&f.retries, "retries", 0, "Extra attempts for downloads failing transiently")
}

func (f *runFlags) apply(cmd *cobra.Command, s *config.Settings) {
	f.planFlags.apply(cmd, s)
	flags := cmd.Flags()
	if f.dryRun {
		s.DryRun = true
	}
	if flags.Changed("download-workers") {
		s.DownloadWorkers = f.downloadWorkers
	}
	if flags.Changed("image-workers") {
		s.ImageWorkers = f.imageWorkers
	}
	if flags.Changed("video-workers") {
		s.VideoWorkers = f.videoWorkers
	}
	if flags.Changed("retries") {
		s.DownloadMaxRetries = f.retries
	}
}
