// Command facetex projects a single photograph onto the UV texture atlas
// of a fixed-topology 3D face mesh template.
package main

import "facetex/cmd"

func main() {
	cmd.Execute()
}
