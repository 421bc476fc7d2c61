package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"facetex/internal/correspond"
	"facetex/internal/landmark"
	"facetex/internal/mesh"
	"facetex/internal/overlay"
	"facetex/internal/photo"
	"facetex/internal/pipeline"
)

var (
	templatePath  string
	landmarksPath string
	outDir        string
	writeDiag     bool
	writeOverlay  bool
)

var projectCmd = &cobra.Command{
	Use:   "project <photo>...",
	Short: "Project one or more photos onto the mesh texture atlas",
	Long: `Project runs the full pipeline for each photo: correspondence
building, camera fitting, optional shape fitting, dense mapping,
rasterization and compositing. Landmarks are read from the file given by
--landmarks, or from <photo>.landmarks.json next to each photo.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tmpl, err := mesh.LoadTemplate(templatePath)
		if err != nil {
			return fmt.Errorf("load template: %w", err)
		}
		pipe := pipeline.New(tmpl, cfg)

		var bar *progressbar.ProgressBar
		if len(args) > 1 {
			bar = progressbar.Default(int64(len(args)), "projecting")
		}

		for _, photoPath := range args {
			if err := projectOne(pipe, tmpl, photoPath); err != nil {
				return fmt.Errorf("%s: %w", photoPath, err)
			}
			if bar != nil {
				_ = bar.Add(1)
			}
		}
		return nil
	},
}

func projectOne(pipe *pipeline.Pipeline, tmpl *mesh.Template, photoPath string) error {
	img, err := photo.Load(photoPath)
	if err != nil {
		return err
	}

	lmPath := landmarksPath
	if lmPath == "" {
		lmPath = photoPath + ".landmarks.json"
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
	dir := outDir
	if dir == "" {
		dir = filepath.Dir(photoPath)
	}
	outPath := filepath.Join(dir, base+"_texture.png")
	if err := photo.SavePNG(outPath, result.Atlas); err != nil {
		return err
	}
	if writeDiag {
		if err := result.Diagnostics.Save(filepath.Join(dir, base+"_texture.json")); err != nil {
			return err
		}
	}
	if writeOverlay && result.Camera != nil {
		set := correspond.Build(tmpl, lm, nil)
		marked := overlay.Render(img, set, result.Camera, overlay.DefaultOptions())
		if err := photo.SavePNG(filepath.Join(dir, base+"_overlay.png"), marked); err != nil {
			return err
		}
	}
	fmt.Printf("%s: strategy=%s correspondences=%d reproj=%.4f coverage=%.1f%%\n",
		outPath, result.Diagnostics.Strategy, result.Diagnostics.Correspondences,
		result.Diagnostics.ReprojError, result.Diagnostics.Coverage*100)
	return nil
}

func init() {
	projectCmd.Flags().StringVarP(&templatePath, "template", "t", "", "Path to mesh template manifest JSON")
	projectCmd.Flags().StringVarP(&landmarksPath, "landmarks", "l", "", "Path to landmarks JSON (default <photo>.landmarks.json)")
	projectCmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Output directory (default next to each photo)")
	projectCmd.Flags().BoolVar(&writeDiag, "diagnostics", true, "Write diagnostics JSON next to each texture")
	projectCmd.Flags().BoolVar(&writeOverlay, "overlay", false, "Write a landmark reprojection overlay next to each texture")
	_ = projectCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(projectCmd)
}
