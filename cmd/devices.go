package cmd

import (
	"bytes"
	"fmt"

	"github.com/urfave/cli"

	"github.com/glowray/shortstack/compute/opencl"
	"github.com/glowray/shortstack/compute/soft"
)

// List the devices a ray batch can be dispatched to.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer

	host := soft.NewDevice(soft.Options{})
	defer host.Close()
	spec := host.Spec()
	buf.WriteString(fmt.Sprintf("\n[%s]\n  Name           %s\n  MaxAllocSize   %d\n  GlobalMemSize  %d\n  MaxWorkGroup   %d\n\n",
		host.Platform(), spec.Name, spec.MaxAllocSize, spec.GlobalMemSize, spec.MaxWorkGroupSize))

	devices, err := opencl.Devices()
	if err != nil {
		logger.Warningf("%v", err)
	}
	for _, dev := range devices {
		if err = dev.Init(); err != nil {
			logger.Warningf("%v", err)
			continue
		}
		spec = dev.Spec()
		buf.WriteString(fmt.Sprintf("[%s]\n  Name           %s\n  MaxAllocSize   %d\n  GlobalMemSize  %d\n  MaxWorkGroup   %d\n\n",
			dev.Platform(), spec.Name, spec.MaxAllocSize, spec.GlobalMemSize, spec.MaxWorkGroupSize))
		dev.Close()
	}

	fmt.Print(buf.String())
	return nil
}
