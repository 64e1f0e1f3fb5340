package task

import "strings"

// ActionKind identifies the kind of change recorded in a task's history.
type ActionKind int

const (
	// ActionUnknown covers history entries whose code is not one of the
	// known kinds. Such entries are rendered verbatim.
	ActionUnknown ActionKind = iota
	ActionCreated
	ActionStatusUpdated
	ActionLogAdded
	ActionTitleEdited
)

var actionCodes = map[ActionKind]string{
	ActionCreated:       "task_created",
	ActionStatusUpdated: "task_status_updated",
	ActionLogAdded:      "task_log_added",
	ActionTitleEdited:   "task_title_edited",
}

func (k ActionKind) Code() string {
	return actionCodes[k]
}

// Action is the parsed form of a history entry's action text, which is
// stored as "code" or "code: detail".
type Action struct {
	Kind   ActionKind
	Detail string
	// Raw is the stored text. Kept so unknown actions round-trip unchanged.
	Raw string
}

func NewAction(kind ActionKind, detail string) Action {
	raw := kind.Code()
	if detail != "" {
		raw += ": " + detail
	}
	return Action{Kind: kind, Detail: detail, Raw: raw}
}

func ParseAction(raw string) Action {
	code, detail, _ := strings.Cut(raw, ":")
	a := Action{Kind: ActionUnknown, Detail: strings.TrimSpace(detail), Raw: raw}
	for kind, c := range actionCodes {
		if c == code {
			a.Kind = kind
			break
		}
	}
	return a
}

func (a Action) String() string {
	return a.Raw
}

// Readable renders the action as a phrase for the details view.
func (a Action) Readable() string {
	switch a.Kind {
	case ActionCreated:
		return "Created task"
	case ActionStatusUpdated:
		return "Updated status " + a.Detail
	case ActionLogAdded:
		return "Added log " + a.Detail
	case ActionTitleEdited:
		return "Edited title " + a.Detail
	default:
		return a.Raw
	}
}
