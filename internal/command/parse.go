package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const Prefix = "!"

type Name string

const (
	Add       Name = "add"
	List      Name = "list"
	Done      Name = "done"
	Close     Name = "close"
	Log       Name = "log"
	Details   Name = "details"
	Edit      Name = "edit"
	Clear     Name = "clear"
	Save      Name = "save"
	Load      Name = "load"
	LoadLast  Name = "loadlast"
	ListFiles Name = "list_files"
	Help      Name = "help"
)

var names = map[string]Name{
	"add": Add, "a": Add,
	"list": List, "ls": List, "l": List,
	"done": Done, "d": Done,
	"close": Close, "c": Close,
	"log": Log, "lg": Log,
	"details": Details, "det": Details,
	"edit": Edit, "e": Edit,
	"clear": Clear, "clr": Clear,
	"save": Save, "s": Save,
	"load": Load, "ld": Load,
	"loadlast": LoadLast, "ll": LoadLast,
	"list_files": ListFiles, "lf": ListFiles,
	"help": Help, "h": Help,
}

// Lookup resolves a command word or alias, ignoring case.
func Lookup(word string) (Name, bool) {
	n, ok := names[strings.ToLower(word)]
	return n, ok
}

// Command is a successfully parsed chat command.
type Command struct {
	Name Name
	// Word is the command word as typed, lowercased.
	Word     string
	Position int
	Text     string
	// HasText is false for "!help" without a topic.
	HasText bool
}

// ErrNotCommand is returned for messages that do not start with the prefix.
var ErrNotCommand = errors.New("not a command")

type ParseFailure int

const (
	UnknownCommand ParseFailure = iota + 1
	InvalidArgument
)

// ParseError describes why a command line was rejected.
type ParseError struct {
	Failure ParseFailure
	Word    string
	Reason  string
}

func (e *ParseError) Error() string {
	switch e.Failure {
	case UnknownCommand:
		return fmt.Sprintf("unknown command %q", e.Word)
	default:
		return fmt.Sprintf("invalid argument for %q: %s", e.Word, e.Reason)
	}
}

// Parse turns a message body into a Command. Bodies without the prefix yield
// ErrNotCommand; malformed commands yield a *ParseError.
func Parse(body string) (Command, error) {
	if !strings.HasPrefix(body, Prefix) {
		return Command{}, ErrNotCommand
	}
	word, args := splitFirst(strings.TrimPrefix(body, Prefix))
	word = strings.ToLower(word)
	name, ok := Lookup(word)
	if !ok {
		return Command{}, &ParseError{Failure: UnknownCommand, Word: word}
	}
	cmd := Command{Name: name, Word: word}
	invalid := func(reason string) (Command, error) {
		return Command{}, &ParseError{Failure: InvalidArgument, Word: word, Reason: reason}
	}

	switch name {
	case Add:
		if args == "" {
			return invalid("missing task title")
		}
		cmd.Text, cmd.HasText = args, true
	case Done, Close, Details:
		n, err := parsePosition(args)
		if err != nil {
			return invalid(err.Error())
		}
		cmd.Position = n
	case Log, Edit:
		first, rest := splitFirst(args)
		n, err := parsePosition(first)
		if err != nil {
			return invalid(err.Error())
		}
		cmd.Position = n
		if rest == "" {
			if name == Edit {
				return invalid("missing new title")
			}
			return invalid("missing note")
		}
		cmd.Text, cmd.HasText = rest, true
	case Load:
		if args == "" {
			return invalid("missing filename")
		}
		cmd.Text, cmd.HasText = args, true
	case Help:
		cmd.Text, cmd.HasText = args, args != ""
	}
	return cmd, nil
}

func parsePosition(s string) (int, error) {
	if s == "" {
		return 0, errors.New("missing task number")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a task number", s)
	}
	return n, nil
}

// splitFirst splits at the first run of whitespace and trims both halves.
func splitFirst(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
