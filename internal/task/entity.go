package task

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusClosed  = "closed"

	// UnknownCreator is used for tasks restored from snapshots that predate
	// creator tracking.
	UnknownCreator = "Unknown"

	// HistoryTimeLayout is the layout of HistoryEntry.Timestamp.
	HistoryTimeLayout = "2006-01-02 15:04:05"

	truncateLen = 30
)

// HistoryEntry is one (timestamp, actor, action) record.
type HistoryEntry struct {
	Timestamp string
	Actor     string
	Action    Action
}

// Task is a single to-do item. Status is an open string; Logs and History
// only ever grow.
type Task struct {
	ID      int
	Title   string
	Status  string
	Logs    []string
	Creator string
	History []HistoryEntry

	now func() time.Time
}

// New creates a pending task and records its creation.
func New(actor string, id int, title string) *Task {
	t := &Task{
		ID:      id,
		Title:   title,
		Status:  StatusPending,
		Logs:    []string{},
		Creator: actor,
	}
	t.record(actor, NewAction(ActionCreated, ""))
	return t
}

// Restore rebuilds a task from persisted fields without recording anything.
// If history is empty a creation entry attributed to the creator is added so
// every task keeps at least one history entry.
func Restore(id int, title, status string, logs []string, creator string, history []HistoryEntry) *Task {
	if logs == nil {
		logs = []string{}
	}
	t := &Task{
		ID:      id,
		Title:   title,
		Status:  status,
		Logs:    logs,
		Creator: creator,
		History: history,
	}
	if len(t.History) == 0 {
		t.record(creator, NewAction(ActionCreated, ""))
	}
	return t
}

func (t *Task) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func (t *Task) record(actor string, action Action) {
	t.History = append(t.History, HistoryEntry{
		Timestamp: t.clock().UTC().Format(HistoryTimeLayout),
		Actor:     actor,
		Action:    action,
	})
}

func (t *Task) SetStatus(actor, status string) {
	old := t.Status
	t.Status = status
	t.record(actor, NewAction(ActionStatusUpdated, fmt.Sprintf("from '%s' to '%s'", old, status)))
}

func (t *Task) SetTitle(actor, title string) {
	old := t.Title
	t.Title = title
	t.record(actor, NewAction(ActionTitleEdited, fmt.Sprintf("from '%s' to '%s'", truncate(old), truncate(title))))
}

func (t *Task) AddLog(actor, text string) {
	t.Logs = append(t.Logs, text)
	t.record(actor, NewAction(ActionLogAdded, fmt.Sprintf("'%s'", truncate(text))))
}

// Summary renders "[status] title".
func (t *Task) Summary() string {
	return fmt.Sprintf("[%s] %s", t.Status, t.Title)
}

// Details renders the multi-section report shown by the details command.
func (t *Task) Details() string {
	lines := []string{
		fmt.Sprintf("**%s**", t.Summary()),
		"Created by: " + t.Creator,
	}
	if len(t.Logs) > 0 {
		lines = append(lines, "\n**Logs:**")
		for i, l := range t.Logs {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, l))
		}
	}
	if len(t.History) > 0 {
		lines = append(lines, "\n**History:**")
		for _, h := range t.History {
			lines = append(lines, fmt.Sprintf("• %s - %s: %s", h.Timestamp, h.Actor, h.Action.Readable()))
		}
	}
	return strings.Join(lines, "\n")
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= truncateLen {
		return s
	}
	return string([]rune(s)[:truncateLen]) + "..."
}
