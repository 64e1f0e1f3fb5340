package matrix

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/kazz187/asmith/internal/failure"
)

// Error is a failed call against the homeserver, classified for the
// failure monitor.
type Error struct {
	Kind    failure.Kind
	Op      string
	Status  int
	ErrCode string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.ErrCode != "":
		return fmt.Sprintf("matrix %s: %s (status=%d errcode=%s): %v", e.Op, e.Kind, e.Status, e.ErrCode, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("matrix %s: %s (status=%d): %v", e.Op, e.Kind, e.Status, e.Err)
	default:
		return fmt.Sprintf("matrix %s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err. Errors that did not come from the
// client are classified by their shape.
func KindOf(err error) failure.Kind {
	if err == nil {
		return ""
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return transportKind(err)
}

func transportKind(err error) failure.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return failure.KindTimeout
		}
		return failure.KindNetwork
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return failure.KindNetwork
	}
	return failure.KindUnknown
}

func isAuthFailure(status int, errCode string) bool {
	switch errCode {
	case "M_FORBIDDEN", "M_UNKNOWN_TOKEN", "M_MISSING_TOKEN", "M_USER_DEACTIVATED":
		return true
	}
	return status == 401
}
