package task

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *Task) {
	t.now = func() time.Time {
		return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	}
}

func TestNew(t *testing.T) {
	tk := New("@alice:example.org", 0, "Buy milk")

	assert.Equal(t, 0, tk.ID)
	assert.Equal(t, "Buy milk", tk.Title)
	assert.Equal(t, StatusPending, tk.Status)
	assert.Empty(t, tk.Logs)
	assert.Equal(t, "@alice:example.org", tk.Creator)
	require.Len(t, tk.History, 1)
	assert.Equal(t, ActionCreated, tk.History[0].Action.Kind)
	assert.Equal(t, "task_created", tk.History[0].Action.String())
	_, err := time.Parse(HistoryTimeLayout, tk.History[0].Timestamp)
	assert.NoError(t, err)
}

func TestTask_Mutations(t *testing.T) {
	tk := New("@alice", 0, "Buy milk")
	fixedClock(tk)

	tk.SetStatus("@bob", StatusDone)
	tk.AddLog("@bob", "short note")
	tk.SetTitle("@carol", "Buy oat milk")

	assert.Equal(t, StatusDone, tk.Status)
	assert.Equal(t, []string{"short note"}, tk.Logs)
	assert.Equal(t, "Buy oat milk", tk.Title)
	assert.Equal(t, "@alice", tk.Creator)
	require.Len(t, tk.History, 4)

	assert.Equal(t, HistoryEntry{
		Timestamp: "2025-03-04 05:06:07",
		Actor:     "@bob",
		Action:    NewAction(ActionStatusUpdated, "from 'pending' to 'done'"),
	}, tk.History[1])
	assert.Equal(t, "task_log_added: 'short note'", tk.History[2].Action.Raw)
	assert.Equal(t, "task_title_edited: from 'Buy milk' to 'Buy oat milk'", tk.History[3].Action.Raw)
	assert.Equal(t, "@carol", tk.History[3].Actor)
}

func TestTask_TruncatesLongValues(t *testing.T) {
	long := strings.Repeat("a", 31)
	tk := New("@alice", 0, long)

	tk.AddLog("@alice", long)
	tk.SetTitle("@alice", "short")

	assert.Equal(t, long, tk.Logs[0])
	assert.Equal(t, "'"+strings.Repeat("a", 30)+"...'", tk.History[1].Action.Detail)
	assert.Equal(t, "from '"+strings.Repeat("a", 30)+"...' to 'short'", tk.History[2].Action.Detail)

	exact := strings.Repeat("é", 30)
	tk.AddLog("@alice", exact)
	assert.Equal(t, "'"+exact+"'", tk.History[3].Action.Detail)
}

func TestTask_Summary(t *testing.T) {
	tk := New("@alice", 0, "Buy milk")
	assert.Equal(t, "[pending] Buy milk", tk.Summary())
	tk.SetStatus("@alice", "blocked")
	assert.Equal(t, "[blocked] Buy milk", tk.Summary())
}

func TestTask_Details(t *testing.T) {
	tk := Restore(3, "Buy milk", StatusPending, []string{"first", "second"}, "@alice", []HistoryEntry{
		{Timestamp: "2025-01-01 10:00:00", Actor: "@alice", Action: ParseAction("task_created")},
		{Timestamp: "2025-01-01 10:01:00", Actor: "@bob", Action: ParseAction("task_log_added: 'first'")},
		{Timestamp: "2025-01-01 10:02:00", Actor: "@bob", Action: ParseAction("task_status_updated: from 'pending' to 'pending'")},
		{Timestamp: "2025-01-01 10:03:00", Actor: "@bob", Action: ParseAction("task_title_edited: from 'a' to 'Buy milk'")},
		{Timestamp: "2025-01-01 10:04:00", Actor: "@eve", Action: ParseAction("task_archived: by bot")},
	})

	want := strings.Join([]string{
		"**[pending] Buy milk**",
		"Created by: @alice",
		"",
		"**Logs:**",
		"1. first",
		"2. second",
		"",
		"**History:**",
		"• 2025-01-01 10:00:00 - @alice: Created task",
		"• 2025-01-01 10:01:00 - @bob: Added log 'first'",
		"• 2025-01-01 10:02:00 - @bob: Updated status from 'pending' to 'pending'",
		"• 2025-01-01 10:03:00 - @bob: Edited title from 'a' to 'Buy milk'",
		"• 2025-01-01 10:04:00 - @eve: task_archived: by bot",
	}, "\n")
	assert.Equal(t, want, tk.Details())
}

func TestTask_DetailsWithoutLogs(t *testing.T) {
	tk := New("@alice", 0, "Buy milk")
	fixedClock(tk)
	tk.History[0].Timestamp = "2025-01-01 10:00:00"

	assert.Equal(t, "**[pending] Buy milk**\nCreated by: @alice\n\n**History:**\n• 2025-01-01 10:00:00 - @alice: Created task", tk.Details())
}

func TestRestore_KeepsCreatorVerbatim(t *testing.T) {
	tk := Restore(1, "t", "done", nil, "", nil)
	assert.Equal(t, "", tk.Creator)
	assert.NotNil(t, tk.Logs)
	require.Len(t, tk.History, 1)
	assert.Equal(t, "", tk.History[0].Actor)
	assert.Equal(t, ActionCreated, tk.History[0].Action.Kind)
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		raw    string
		kind   ActionKind
		detail string
	}{
		{raw: "task_created", kind: ActionCreated},
		{raw: "task_status_updated: from 'a' to 'b'", kind: ActionStatusUpdated, detail: "from 'a' to 'b'"},
		{raw: "task_log_added: 'x: y'", kind: ActionLogAdded, detail: "'x: y'"},
		{raw: "task_title_edited:from 'a' to 'b'", kind: ActionTitleEdited, detail: "from 'a' to 'b'"},
		{raw: "something_else", kind: ActionUnknown},
		{raw: "", kind: ActionUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			a := ParseAction(tt.raw)
			assert.Equal(t, tt.kind, a.Kind)
			assert.Equal(t, tt.detail, a.Detail)
			assert.Equal(t, tt.raw, a.String())
		})
	}
}
