package hatsetup

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskProgresses(t *testing.T) {
	task := NewTask("one", "two", "three", "four")
	assert.Equal(t, 0.0, task.Progress())
	assert.Nil(t, task.CurrentStep())

	task.Advance()
	require.NotNil(t, task.CurrentStep())
	assert.Equal(t, "one", task.CurrentStep().Name)
	assert.Equal(t, 0.0, task.Progress())

	task.Advance()
	task.Advance()
	assert.Equal(t, "three", task.CurrentStep().Name)
	assert.Equal(t, 0.5, task.Progress())
}

func TestTaskWaitForDone(t *testing.T) {
	task := NewTask("one", "two")
	task.Start(func(t *Task) error {
		t.Advance()
		t.Advance()
		t.Advance()
		return nil
	})
	require.NoError(t, task.WaitForDone())
	assert.True(t, task.Done())
	assert.Equal(t, 1.0, task.Progress())
}

func TestTaskPropagatesError(t *testing.T) {
	boom := errors.New("signing key unreachable")
	task := NewTask("one", "two")
	task.Start(func(t *Task) error {
		t.Advance()
		return boom
	})
	assert.ErrorIs(t, task.WaitForDone(), boom)
	assert.ErrorIs(t, task.Err(), boom)
}

func TestTaskProgressFunction(t *testing.T) {
	task := NewTask("one", "two")
	var seen []string
	task.SetProgressFunction(func(status TaskStatus) {
		if status.Step != nil {
			seen = append(seen, status.Step.Name)
		}
	})
	task.Start(func(t *Task) error {
		t.Advance()
		t.Advance()
		return nil
	})
	require.NoError(t, task.WaitForDone())
	assert.Equal(t, []string{"one", "two"}, seen)
}

func TestTaskStatusDoesNotBlockWithoutReader(t *testing.T) {
	task := NewTask("one", "two", "three")
	task.Start(func(t *Task) error {
		t.Advance()
		t.Advance()
		t.Advance()
		return nil
	})
	require.NoError(t, task.WaitForDone())
	// The last written status is the completion message.
	status := task.Status()
	assert.True(t, status.Done)
}
