package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"facetex/internal/config"
	"facetex/internal/correspond"
	"facetex/internal/landmark"
	"facetex/internal/mesh"
	"facetex/internal/overlay"
	"facetex/internal/photo"
	"facetex/internal/pipeline"
	"facetex/internal/project"
)

var batchCmd = &cobra.Command{
	Use:   "batch <job.ftproj>",
	Short: "Project every photo listed in a job file",
	Long: `Batch loads a .ftproj job file and runs the projection pipeline
for each photo entry. Paths in the job file are resolved relative to the
job file itself, and its settings decide whether diagnostics and overlay
images are written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobPath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		job, err := project.Load(jobPath)
		if err != nil {
			return err
		}
		if len(job.Photos) == 0 {
			return fmt.Errorf("job %q lists no photos", job.Name)
		}

		jobCfg := cfg
		if override := job.ResolveConfig(jobPath); override != "" {
			jobCfg, err = config.Load(override)
			if err != nil {
				return fmt.Errorf("job config: %w", err)
			}
		}

		tmpl, err := mesh.LoadTemplate(job.ResolveTemplate(jobPath))
		if err != nil {
			return fmt.Errorf("load template: %w", err)
		}
		pipe := pipeline.New(tmpl, jobCfg)

		bar := progressbar.Default(int64(len(job.Photos)), job.Name)
		for i := range job.Photos {
			photoPath, lmPath := job.ResolvePhoto(jobPath, i)
			if err := batchOne(pipe, tmpl, job, jobPath, photoPath, lmPath); err != nil {
				return fmt.Errorf("%s: %w", photoPath, err)
			}
			_ = bar.Add(1)
		}
		return nil
	},
}

func batchOne(pipe *pipeline.Pipeline, tmpl *mesh.Template, job *project.File, jobPath, photoPath, lmPath string) error {
	img, err := photo.Load(photoPath)
	if err != nil {
		return err
	}
	lm, err := landmark.LoadJSON(lmPath)
	if err != nil {
		return fmt.Errorf("landmarks: %w", err)
	}

	result, err := pipe.Run(img, lm)
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(photoPath), filepath.Ext(photoPath))
	dir := job.ResolveOutputDir(jobPath)
	if dir == "" {
		dir = filepath.Dir(photoPath)
	}
	if err := photo.SavePNG(filepath.Join(dir, base+"_texture.png"), result.Atlas); err != nil {
		return err
	}
	if job.Settings.WriteDiagnostics {
		if err := result.Diagnostics.Save(filepath.Join(dir, base+"_texture.json")); err != nil {
			return err
		}
	}
	if job.Settings.WriteOverlay && result.Camera != nil {
		set := correspond.Build(tmpl, lm, nil)
		marked := overlay.Render(img, set, result.Camera, overlay.DefaultOptions())
		if err := photo.SavePNG(filepath.Join(dir, base+"_overlay.png"), marked); err != nil {
			return err
		}
	}
	return nil
}

var batchInitCmd = &cobra.Command{
	Use:   "init <job.ftproj> <photo>...",
	Short: "Create a job file listing the given photos",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobPath, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		tmplPath, err := filepath.Abs(templatePath)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(jobPath), filepath.Ext(jobPath))
		job := project.New(name, tmplPath)
		for _, p := range args[1:] {
			abs, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			job.AddPhoto(jobPath, abs, "")
		}
		if err := job.Save(jobPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s with %d photos\n", jobPath, len(job.Photos))
		return nil
	},
}

func init() {
	batchInitCmd.Flags().StringVarP(&templatePath, "template", "t", "", "Path to mesh template manifest JSON")
	_ = batchInitCmd.MarkFlagRequired("template")
	batchCmd.AddCommand(batchInitCmd)
	rootCmd.AddCommand(batchCmd)
}
