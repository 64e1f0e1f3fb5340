package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kazz187/asmith/internal/task"
)

// taskRecord is the persisted shape of a task. Pointer fields distinguish
// missing keys from zero values.
type taskRecord struct {
	ID           *int           `json:"id"`
	Title        *string        `json:"title"`
	Status       *string        `json:"status"`
	Logs         []string       `json:"logs"`
	Creator      *string        `json:"creator,omitempty"`
	InternalLogs []historyTuple `json:"internal_logs,omitempty"`
}

// historyTuple is a [timestamp, actor, action] JSON array.
type historyTuple struct {
	Timestamp string
	Actor     string
	Action    string
}

func (h historyTuple) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{h.Timestamp, h.Actor, h.Action})
}

func (h *historyTuple) UnmarshalJSON(data []byte) error {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("history entry must be an array of strings: %w", err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("history entry must have 3 elements, got %d", len(parts))
	}
	h.Timestamp, h.Actor, h.Action = parts[0], parts[1], parts[2]
	return nil
}

var errMissingField = errors.New("missing required field")

func encode(rooms map[string][]*task.Task) ([]byte, error) {
	doc := make(map[string][]taskRecord, len(rooms))
	for room, tasks := range rooms {
		records := make([]taskRecord, 0, len(tasks))
		for _, t := range tasks {
			records = append(records, toRecord(t))
		}
		doc[room] = records
	}
	return json.MarshalIndent(doc, "", "  ")
}

func toRecord(t *task.Task) taskRecord {
	id, title, status, creator := t.ID, t.Title, t.Status, t.Creator
	logs := t.Logs
	if logs == nil {
		logs = []string{}
	}
	history := make([]historyTuple, 0, len(t.History))
	for _, h := range t.History {
		history = append(history, historyTuple{Timestamp: h.Timestamp, Actor: h.Actor, Action: h.Action.String()})
	}
	return taskRecord{
		ID:           &id,
		Title:        &title,
		Status:       &status,
		Logs:         logs,
		Creator:      &creator,
		InternalLogs: history,
	}
}

// decode rebuilds every room. Any malformed task fails the whole document.
func decode(data []byte) (map[string]*task.List, error) {
	var doc map[string][]taskRecord
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if doc == nil {
		return nil, errors.New("snapshot is not an object of rooms")
	}
	rooms := make(map[string]*task.List, len(doc))
	for room, records := range doc {
		tasks := make([]*task.Task, 0, len(records))
		for i, r := range records {
			t, err := fromRecord(r)
			if err != nil {
				return nil, fmt.Errorf("room %s task %d: %w", room, i+1, err)
			}
			tasks = append(tasks, t)
		}
		rooms[room] = task.NewList(tasks...)
	}
	return rooms, nil
}

func fromRecord(r taskRecord) (*task.Task, error) {
	switch {
	case r.ID == nil:
		return nil, fmt.Errorf("%w: id", errMissingField)
	case r.Title == nil:
		return nil, fmt.Errorf("%w: title", errMissingField)
	case r.Status == nil:
		return nil, fmt.Errorf("%w: status", errMissingField)
	}
	creator := task.UnknownCreator
	if r.Creator != nil {
		creator = *r.Creator
	}
	var history []task.HistoryEntry
	for _, h := range r.InternalLogs {
		history = append(history, task.HistoryEntry{
			Timestamp: h.Timestamp,
			Actor:     h.Actor,
			Action:    task.ParseAction(h.Action),
		})
	}
	return task.Restore(*r.ID, *r.Title, *r.Status, r.Logs, creator, history), nil
}
