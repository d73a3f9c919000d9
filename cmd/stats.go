package cmd

import (
	"errors"
	"strings"

	"github.com/urfave/cli"

	"github.com/glowray/shortstack/bvh"
	"github.com/glowray/shortstack/types"
	"github.com/glowray/shortstack/world"
)

// Load the wavefront files passed as arguments into a fresh world and
// apply the hierarchy options selected on the command line.
func loadWorld(ctx *cli.Context) (*world.World, error) {
	if ctx.NArg() == 0 {
		return nil, errors.New("no geometry files given")
	}

	w := world.New()
	for idx := 0; idx < ctx.NArg(); idx++ {
		meshFile := ctx.Args().Get(idx)
		if !strings.HasSuffix(meshFile, ".obj") {
			logger.Warningf("skipping unsupported file %s", meshFile)
			continue
		}

		logger.Noticef("parsing geometry: %s", meshFile)
		mesh, err := world.ReadWavefront(meshFile)
		if err != nil {
			return nil, err
		}
		w.Attach(mesh)
	}
	if len(w.Shapes()) == 0 {
		return nil, errors.New("no usable geometry files given")
	}

	opts := w.Options()
	if ctx.String("builder") != "" {
		opts.SetString(world.OptBuilder, ctx.String("builder"))
	}
	if ctx.Bool("use-splits") {
		opts.SetFloat(world.OptUseSplits, 1)
	}
	return w, nil
}

// Build the hierarchy for the given geometry and print its statistics.
func HierarchyStats(ctx *cli.Context) error {
	setupLogging(ctx)

	w, err := loadWorld(ctx)
	if err != nil {
		return err
	}

	var bounds []types.AABB
	for _, shape := range w.Shapes() {
		mesh := shape.(*world.Mesh)
		for j := 0; j < mesh.NumFaces(); j++ {
			bounds = append(bounds, mesh.FaceBounds(j, false))
		}
	}

	var builder bvh.Builder
	switch {
	case ctx.Bool("use-splits"):
		builder = bvh.NewSplitBuilder(bvh.SplitOptions{})
	case ctx.String("builder") == "sah":
		builder = bvh.NewBuilder(bvh.Options{UseSAH: true})
	default:
		builder = bvh.NewBuilder(bvh.Options{})
	}

	tree, err := builder.Build(bounds)
	if err != nil {
		return err
	}

	logger.Noticef("hierarchy statistics:\n%s", tree.Stats())
	return nil
}
