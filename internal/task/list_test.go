package task

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_AddAssignsIDsAndPositions(t *testing.T) {
	l := NewList()
	for n := 1; n <= 5; n++ {
		tk := l.Add("@alice", fmt.Sprintf("task %d", n))
		assert.Equal(t, n-1, tk.ID)
		assert.Equal(t, n, l.Len())

		got, err := l.Get(n)
		require.NoError(t, err)
		assert.Same(t, tk, got)
	}
}

func TestList_RemoveAtKeepsIDs(t *testing.T) {
	l := NewList()
	l.Add("@alice", "a")
	l.Add("@alice", "b")
	l.Add("@alice", "c")

	removed, err := l.RemoveAt(1)
	require.NoError(t, err)
	assert.Equal(t, "a", removed.Title)

	tasks := l.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "b", tasks[0].Title)
	assert.Equal(t, 1, tasks[0].ID)
	assert.Equal(t, "c", tasks[1].Title)
	assert.Equal(t, 2, tasks[1].ID)

	// IDs follow the length at creation, so they can repeat after removals.
	d := l.Add("@alice", "d")
	assert.Equal(t, 2, d.ID)
}

func TestList_InvalidPositions(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		position int
	}{
		{name: "empty list", size: 0, position: 1},
		{name: "zero", size: 2, position: 0},
		{name: "negative", size: 2, position: -1},
		{name: "past end", size: 2, position: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewList()
			for i := range tt.size {
				l.Add("@alice", fmt.Sprint(i))
			}
			before := l.Tasks()

			_, err := l.RemoveAt(tt.position)
			assert.ErrorIs(t, err, ErrInvalidPosition)
			var perr *PositionError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.position, perr.Position)

			_, err = l.Get(tt.position)
			assert.ErrorIs(t, err, ErrInvalidPosition)
			assert.Equal(t, before, l.Tasks())
		})
	}
}

func TestList_Clear(t *testing.T) {
	l := NewList()
	assert.Equal(t, 0, l.Clear())
	l.Add("@alice", "a")
	l.Add("@alice", "b")
	assert.Equal(t, 2, l.Clear())
	assert.Equal(t, 0, l.Len())
}

func TestList_TasksIsACopy(t *testing.T) {
	l := NewList()
	l.Add("@alice", "a")
	tasks := l.Tasks()
	tasks[0] = nil
	got, err := l.Get(1)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
