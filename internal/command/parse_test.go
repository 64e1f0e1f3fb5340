package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		body string
		want Command
	}{
		{"!add Buy milk", Command{Name: Add, Word: "add", Text: "Buy milk", HasText: true}},
		{"!a   Buy   milk  ", Command{Name: Add, Word: "a", Text: "Buy   milk", HasText: true}},
		{"!ADD Buy milk", Command{Name: Add, Word: "add", Text: "Buy milk", HasText: true}},
		{"!list", Command{Name: List, Word: "list"}},
		{"!ls extra", Command{Name: List, Word: "ls"}},
		{"!l", Command{Name: List, Word: "l"}},
		{"!done 2", Command{Name: Done, Word: "done", Position: 2}},
		{"!d  3 ", Command{Name: Done, Word: "d", Position: 3}},
		{"!close -1", Command{Name: Close, Word: "close", Position: -1}},
		{"!c 1", Command{Name: Close, Word: "c", Position: 1}},
		{"!log 1 called the vendor", Command{Name: Log, Word: "log", Position: 1, Text: "called the vendor", HasText: true}},
		{"!details 4", Command{Name: Details, Word: "details", Position: 4}},
		{"!det 1", Command{Name: Details, Word: "det", Position: 1}},
		{"!edit 1 New title", Command{Name: Edit, Word: "edit", Position: 1, Text: "New title", HasText: true}},
		{"!e 2 x", Command{Name: Edit, Word: "e", Position: 2, Text: "x", HasText: true}},
		{"!clear", Command{Name: Clear, Word: "clear"}},
		{"!clr", Command{Name: Clear, Word: "clr"}},
		{"!save", Command{Name: Save, Word: "save"}},
		{"!s", Command{Name: Save, Word: "s"}},
		{"!load asmith_x_2025-01-01_00-00-00Z.json", Command{Name: Load, Word: "load", Text: "asmith_x_2025-01-01_00-00-00Z.json", HasText: true}},
		{"!ld f", Command{Name: Load, Word: "ld", Text: "f", HasText: true}},
		{"!loadlast", Command{Name: LoadLast, Word: "loadlast"}},
		{"!ll", Command{Name: LoadLast, Word: "ll"}},
		{"!list_files", Command{Name: ListFiles, Word: "list_files"}},
		{"!lf", Command{Name: ListFiles, Word: "lf"}},
		{"!help", Command{Name: Help, Word: "help"}},
		{"!h add", Command{Name: Help, Word: "h", Text: "add", HasText: true}},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			got, err := Parse(tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_NotCommand(t *testing.T) {
	for _, body := range []string{"", "add milk", " !add milk", "hello !list"} {
		_, err := Parse(body)
		assert.ErrorIs(t, err, ErrNotCommand, body)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		body    string
		failure ParseFailure
		word    string
	}{
		{"!frobnicate", UnknownCommand, "frobnicate"},
		{"!", UnknownCommand, ""},
		{"!Frob 1", UnknownCommand, "frob"},
		{"!add", InvalidArgument, "add"},
		{"!add    ", InvalidArgument, "add"},
		{"!done", InvalidArgument, "done"},
		{"!done one", InvalidArgument, "done"},
		{"!d 1.5", InvalidArgument, "d"},
		{"!close x", InvalidArgument, "close"},
		{"!details", InvalidArgument, "details"},
		{"!log", InvalidArgument, "log"},
		{"!log x note", InvalidArgument, "log"},
		{"!log 1", InvalidArgument, "log"},
		{"!lg 2   ", InvalidArgument, "lg"},
		{"!edit 1", InvalidArgument, "edit"},
		{"!edit x title", InvalidArgument, "edit"},
		{"!load", InvalidArgument, "load"},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			_, err := Parse(tt.body)
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "got %v", err)
			assert.Equal(t, tt.failure, perr.Failure)
			assert.Equal(t, tt.word, perr.Word)
			assert.NotEmpty(t, perr.Error())
		})
	}
}
