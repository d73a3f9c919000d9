package main

import (
	"os"

	"github.com/urfave/cli"

	"github.com/glowray/shortstack/cmd"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "shortstack"
	app.Usage = "build BVH ray intersection accelerators and run batched ray queries"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "stats",
			Usage: "build a hierarchy for the given geometry and print its statistics",
			Description: `
Parse one or more wavefront obj files, build a bounding volume hierarchy over
their triangles and print node, leaf and depth statistics for the result.`,
			ArgsUsage: "mesh1.obj mesh2.obj ...",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "builder",
					Value: "",
					Usage: "hierarchy construction strategy (median or sah)",
				},
				cli.BoolFlag{
					Name:  "use-splits",
					Usage: "enable spatial splits during construction",
				},
			},
			Action: cmd.HierarchyStats,
		},
		{
			Name:  "trace",
			Usage: "trace a probe ray grid through the given geometry",
			Description: `
Parse one or more wavefront obj files, build an accelerator on the software
device and dispatch an orthographic probe ray grid against it, reporting hit
coverage and timings.`,
			ArgsUsage: "mesh1.obj mesh2.obj ...",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 256,
					Usage: "probe grid width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 256,
					Usage: "probe grid height",
				},
				cli.StringFlag{
					Name:  "builder",
					Value: "",
					Usage: "hierarchy construction strategy (median or sah)",
				},
				cli.BoolFlag{
					Name:  "use-splits",
					Usage: "enable spatial splits during construction",
				},
			},
			Action: cmd.TraceProbe,
		},
		{
			Name:   "list-devices",
			Usage:  "list available compute devices",
			Action: cmd.ListDevices,
		},
	}

	app.Run(os.Args)
}
