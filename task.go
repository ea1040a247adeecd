package hatsetup

import (
	"sync"
	"time"
)

type (
	// Step is a single named stage of a longer-running system operation,
	// such as registering the package repository or fetching the signing
	// key.
	Step struct {
		Name string
		done bool
	}
	// TaskStatus is a message struct that gets passed around while a task
	// runs. All fields are optional and contain the current step, whether
	// the task as a whole is finished, and its final error if any.
	TaskStatus struct {
		Step *Step
		Done bool
		Err  error
	}
	// Task represents a sequence of steps run in the background, with a
	// status channel for anyone watching the progress. The GUI and the CLI
	// both drive their progress displays from it.
	Task struct {
		steps            []*Step
		cur              int
		done             bool
		err              error
		statusChannel    chan TaskStatus
		doneChannel      chan struct{}
		progressFunction func(TaskStatus)
		actionLock       sync.Mutex
	}
)

// NewTask creates a task with a fixed list of step names. Run it with
// Start() and watch it with Status() or WaitForDone():
//
//	task := NewTask("fetch key", "install key")
//	task.Start(func(t *Task) error { ... })
//	/* some watch loop with 'task.Status()' */
func NewTask(stepNames ...string) *Task {
	steps := make([]*Step, 0, len(stepNames))
	for _, name := range stepNames {
		steps = append(steps, &Step{Name: name})
	}
	return &Task{
		steps:            steps,
		cur:              -1,
		statusChannel:    make(chan TaskStatus, 1),
		doneChannel:      make(chan struct{}),
		progressFunction: func(status TaskStatus) {},
	}
}

// Start runs the given function in a separate goroutine and returns
// immediately. The function should call Advance() as it moves through the
// task's steps.
func (t *Task) Start(run func(*Task) error) {
	go func() {
		err := run(t)
		t.actionLock.Lock()
		t.done = true
		t.err = err
		t.actionLock.Unlock()
		t.setStatus(TaskStatus{Done: true, Err: err})
		close(t.doneChannel)
	}()
}

// Advance marks the current step done (if any) and moves on to the next one.
func (t *Task) Advance() {
	t.actionLock.Lock()
	if t.cur >= 0 && t.cur < len(t.steps) {
		t.steps[t.cur].done = true
	}
	t.cur++
	var step *Step
	if t.cur < len(t.steps) {
		step = t.steps[t.cur]
	}
	t.actionLock.Unlock()
	status := TaskStatus{Step: step}
	t.setStatus(status)
	t.progressFunction(status)
}

// setStatus is a non-blocking write to the status channel. If no-one is
// listening through Status(), a stale unread status gets replaced instead.
func (t *Task) setStatus(status TaskStatus) {
	select {
	case t.statusChannel <- status:
	default:
		select {
		case <-t.statusChannel:
		default:
		}
		select {
		case t.statusChannel <- status:
		default:
		}
	}
}

// Status returns the current task status.
func (t *Task) Status() TaskStatus {
	select {
	case status := <-t.statusChannel:
		return status
	case <-time.After(1 * time.Second):
		return TaskStatus{}
	}
}

// CurrentStep returns the step the task is currently on, or nil before the
// first Advance() and after the last step.
func (t *Task) CurrentStep() *Step {
	t.actionLock.Lock()
	defer t.actionLock.Unlock()
	if t.cur >= 0 && t.cur < len(t.steps) {
		return t.steps[t.cur]
	}
	return nil
}

// Progress returns the ratio between finished steps and all steps. The
// result is a float between 0.0 and 1.0, inclusive.
func (t *Task) Progress() float64 {
	t.actionLock.Lock()
	defer t.actionLock.Unlock()
	if len(t.steps) == 0 {
		return 0
	}
	finished := 0
	for _, step := range t.steps {
		if step.done {
			finished++
		}
	}
	return float64(finished) / float64(len(t.steps))
}

// Done reports whether the task has finished.
func (t *Task) Done() bool {
	t.actionLock.Lock()
	defer t.actionLock.Unlock()
	return t.done
}

// Err returns the error the task finished with, if any.
func (t *Task) Err() error {
	t.actionLock.Lock()
	defer t.actionLock.Unlock()
	return t.err
}

// WaitForDone returns only after the task has finished, and returns its
// error.
func (t *Task) WaitForDone() error {
	<-t.doneChannel
	return t.Err()
}

// SetProgressFunction installs a callback invoked on every step change, in
// addition to the status channel.
func (t *Task) SetProgressFunction(function func(TaskStatus)) {
	t.progressFunction = function
}
