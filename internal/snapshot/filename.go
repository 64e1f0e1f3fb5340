package snapshot

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kazz187/asmith/pkg/cerr"
)

const (
	// TimestampLayout is the UTC timestamp embedded in snapshot names.
	TimestampLayout = "2006-01-02_15-04-05Z"

	extension = ".json"
	// len("2006-01-02_15-04-05")
	timestampLen = 19
)

var (
	ErrInvalidCharacters = errors.New("invalid characters in snapshot name")
	ErrInvalidFormat     = errors.New("snapshot name does not match the expected format")
)

// Naming builds and validates snapshot names of the form
// {app}_{session}_{YYYY-MM-DD_HH-MM-SS}Z.json.
type Naming struct {
	app     string
	pattern *regexp.Regexp
}

func NewNaming(app string) Naming {
	return Naming{
		app: app,
		pattern: regexp.MustCompile(
			`^` + regexp.QuoteMeta(app) + `_.+_[0-9]{4}-[0-9]{2}-[0-9]{2}_[0-9]{2}-[0-9]{2}-[0-9]{2}Z\.json$`,
		),
	}
}

func (n Naming) App() string {
	return n.app
}

// Format is the human readable grammar shown to users.
func (n Naming) Format() string {
	return n.app + "_<session_id>_<YYYY-MM-DD_HH-MM-SS>Z" + extension
}

func (n Naming) Name(session string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s%s", n.app, session, at.UTC().Format(TimestampLayout), extension)
}

// Validate checks name without touching storage. Path separators and ".."
// are rejected before the pattern is consulted.
func (n Naming) Validate(name string) error {
	if strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return cerr.NewError(cerr.InvalidArgument, "invalid characters detected in filename", ErrInvalidCharacters)
	}
	if !n.pattern.MatchString(name) {
		return cerr.NewError(cerr.InvalidArgument,
			fmt.Sprintf("filename '%s' does not match the expected format: %s", name, n.Format()), ErrInvalidFormat)
	}
	return nil
}

func (n Naming) Match(name string) bool {
	return n.Validate(name) == nil
}

// timestampKey returns the fixed width date-time segment of a valid name.
// Lexicographic order over it is chronological order.
func timestampKey(name string) string {
	end := len(name) - len("Z"+extension)
	return name[end-timestampLen : end]
}

// Timestamp parses the time embedded in a valid name.
func Timestamp(name string) (time.Time, error) {
	end := len(name) - len(extension)
	if end-timestampLen-1 < 0 {
		return time.Time{}, ErrInvalidFormat
	}
	t, err := time.Parse(TimestampLayout, name[end-timestampLen-1:end])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return t, nil
}
