package eventbus

import "time"

type EventType string

const (
	TaskCreated       EventType = "task.created"
	TaskStatusChanged EventType = "task.status_changed"
	TaskTitleEdited   EventType = "task.title_edited"
	TaskLogAdded      EventType = "task.log_added"
	TaskRemoved       EventType = "task.removed"
	RoomCleared       EventType = "room.cleared"
	SnapshotSaved     EventType = "snapshot.saved"
	SnapshotLoaded    EventType = "snapshot.loaded"
	TransportFailure  EventType = "transport.failure"
)

// Event is a domain notification. Room is empty for process wide events.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Room      string            `json:"room,omitempty"`
	Actor     string            `json:"actor,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
