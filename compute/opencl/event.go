package opencl

import "github.com/glowray/shortstack/compute"

// queueEvent resolves by draining the command queue the operation was
// submitted on. Command queues are in-order so a finish covers the launch.
type queueEvent struct {
	device *Device
	queue  int
}

var _ compute.Event = (*queueEvent)(nil)

func (e *queueEvent) Wait() error { return e.device.Finish(e.queue) }
func (e *queueEvent) Release()    {}

// doneEvent is returned for operations completed synchronously.
type doneEvent struct{}

func (doneEvent) Wait() error { return nil }
func (doneEvent) Release()    {}

var sharedDoneEvent compute.Event = doneEvent{}

func completedEvent() compute.Event { return sharedDoneEvent }
