package soft

import "sync"

// event implements compute.Event for asynchronous host operations.
type event struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newEvent() *event {
	return &event{done: make(chan struct{})}
}

func (e *event) complete(err error) {
	e.once.Do(func() {
		e.err = err
		close(e.done)
	})
}

func (e *event) Wait() error {
	<-e.done
	return e.err
}

func (e *event) Release() {}

var completed = func() *event {
	e := newEvent()
	e.complete(nil)
	return e
}()

// An already-signalled event for synchronous operations.
func completedEvent() *event {
	return completed
}
