package cmd

import (
	"fmt"
	"math"
	"time"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/urfave/cli"

	"github.com/glowray/shortstack/compute"
	"github.com/glowray/shortstack/compute/soft"
	"github.com/glowray/shortstack/intersector"
	"github.com/glowray/shortstack/types"
	"github.com/glowray/shortstack/world"
)

// Trace a probe ray grid through the loaded geometry and report hit
// coverage. Rays are cast front-to-back along -Z across the scene bounds.
func TraceProbe(ctx *cli.Context) error {
	setupLogging(ctx)

	w, err := loadWorld(ctx)
	if err != nil {
		return err
	}

	width := ctx.Int("width")
	height := ctx.Int("height")
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid probe grid %dx%d", width, height)
	}

	device := soft.NewDevice(soft.Options{})
	defer device.Close()

	accel, err := intersector.NewShortStack(device, intersector.DefaultConfig())
	if err != nil {
		return err
	}
	defer accel.Close()

	start := time.Now()
	if err = accel.Process(w); err != nil {
		return err
	}
	logger.Noticef("hierarchy built in %d ms", time.Since(start).Nanoseconds()/1e6)

	rays := probeRays(w, width, height)

	rayBuf, err := device.CreateBufferWithData(rays, compute.BufferRead)
	if err != nil {
		return err
	}
	defer device.DeleteBuffer(rayBuf)
	numBuf, err := device.CreateBufferWithData([]int32{int32(len(rays))}, compute.BufferRead)
	if err != nil {
		return err
	}
	defer device.DeleteBuffer(numBuf)
	hitBuf, err := device.CreateBuffer(uint64(len(rays))*uint64(unsafe.Sizeof(intersector.Intersection{})), compute.BufferWrite)
	if err != nil {
		return err
	}
	defer device.DeleteBuffer(hitBuf)

	start = time.Now()
	ev, err := accel.Intersect(0, rayBuf, numBuf, len(rays), hitBuf, nil)
	if err != nil {
		return err
	}
	if err = ev.Wait(); err != nil {
		return err
	}
	ev.Release()
	elapsed := time.Since(start)

	mapped, ev, err := device.MapBuffer(hitBuf, 0, 0, hitBuf.Size(), compute.MapRead)
	if err != nil {
		return err
	}
	if err = ev.Wait(); err != nil {
		return err
	}
	ev.Release()
	hits := unsafe.Slice((*intersector.Intersection)(unsafe.Pointer(&mapped[0])), len(rays))

	numHits := 0
	nearest := float32(math.MaxFloat32)
	for _, hit := range hits {
		if hit.ShapeID == intersector.NullID {
			continue
		}
		numHits++
		if hit.UVWT.W() < nearest {
			nearest = hit.UVWT.W()
		}
	}
	if _, err = device.UnmapBuffer(hitBuf, 0, mapped); err != nil {
		return err
	}

	logger.Noticef("traced %d rays in %d ms: %d hits (%.1f%% coverage)",
		len(rays), elapsed.Nanoseconds()/1e6, numHits, 100*float64(numHits)/float64(len(rays)))
	if numHits > 0 {
		logger.Noticef("nearest hit at distance %.4f", nearest)
	}
	return nil
}

// Build a width x height orthographic ray grid covering the world bounds,
// shooting along -Z from just in front of the geometry.
func probeRays(w *world.World, width, height int) []intersector.Ray {
	var sceneMin, sceneMax mgl32.Vec3
	first := true
	for _, shape := range w.Shapes() {
		mesh := shape.(*world.Mesh)
		for j := 0; j < mesh.NumFaces(); j++ {
			b := mesh.FaceBounds(j, false)
			if first {
				sceneMin, sceneMax = b.Min, b.Max
				first = false
				continue
			}
			sceneMin = types.MinVec3(sceneMin, b.Min)
			sceneMax = types.MaxVec3(sceneMax, b.Max)
		}
	}

	extent := sceneMax.Sub(sceneMin)
	maxT := extent.Z()*2 + 1
	dir := mgl32.Vec3{0, 0, -1}

	rays := make([]intersector.Ray, 0, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			origin := mgl32.Vec3{
				sceneMin.X() + extent.X()*(float32(x)+0.5)/float32(width),
				sceneMin.Y() + extent.Y()*(float32(y)+0.5)/float32(height),
				sceneMax.Z() + extent.Z()*0.1 + 0.001,
			}
			rays = append(rays, intersector.NewRay(origin, dir, maxT))
		}
	}
	return rays
}
