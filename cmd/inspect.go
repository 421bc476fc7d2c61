package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"facetex/internal/mesh"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <template-manifest>",
	Short: "Print mesh template statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tmpl, err := mesh.LoadTemplate(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("vertices:          %d\n", len(tmpl.Vertices))
		fmt.Printf("faces:             %d\n", len(tmpl.Faces))
		fmt.Printf("uv vertices:       %d\n", len(tmpl.UV))
		fmt.Printf("basis components:  %d\n", tmpl.ComponentCount)
		fmt.Printf("landmark anchors:  %d\n", len(tmpl.Embedding))
		fmt.Printf("albedo:            %v\n", tmpl.Albedo != nil)
		c := tmpl.Centroid()
		fmt.Printf("centroid:          (%.4f, %.4f, %.4f)\n", c.X, c.Y, c.Z)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
