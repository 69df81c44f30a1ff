package fibermill

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugDump_EmptyWhenDisabled(t *testing.T) {
	old := Debug
	Debug = false
	defer func() { Debug = old }()

	task := &Task{id: 7}
	assert.Equal(t, "", debugDump(task))
}

func TestDebugDump_IncludesTaskFieldsWhenEnabled(t *testing.T) {
	old := Debug
	Debug = true
	defer func() { Debug = old }()

	task := &Task{id: 7}
	task.refs.Store(2)
	dump := debugDump(task)
	assert.Contains(t, dump, "task=7")
	assert.Contains(t, dump, "refs=2")
}

func TestFatalfTask_PanicsAndIncludesDumpWhenDebugEnabled(t *testing.T) {
	old := Debug
	Debug = true
	defer func() { Debug = old }()

	task := &Task{id: 42}
	task.refs.Store(1)

	defer func() {
		r := recover()
		assert.NotNil(t, r)
		err, ok := r.(error)
		assert.True(t, ok)
		assert.True(t, errors.Is(err, ErrDoubleWaiter))
		assert.Contains(t, err.Error(), "task=42")
	}()
	fatalfTask(ErrDoubleWaiter, task, "task %d already has a waiter installed", task.id)
}
