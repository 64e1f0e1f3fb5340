package command

import (
	"fmt"
	"html"
	"slices"
	"strings"

	"github.com/kazz187/asmith/internal/task"
)

// Reply is an outbound chat message. HTML is optional.
type Reply struct {
	Text string
	HTML string
}

func plain(text string) Reply {
	return Reply{Text: text}
}

func htmlLines(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
}

const (
	noTasksText      = "ℹ️ Info: There are no tasks in this room's to-do list."
	noTasksClearText = "ℹ️ Info: There are no tasks in this room's to-do list to clear."
	clearedText      = "🗑️ List Cleared: The room's to-do list has been cleared."
	noFilesText      = "ℹ️ No Files Found: No saved to-do list files found."
	badCharsText     = "❌ Invalid Filename: Invalid characters detected in filename."
)

func invalidPositionReply(n int) Reply {
	return plain(fmt.Sprintf("❌ Error: Invalid task number: %d. Use `!list` to see valid numbers.", n))
}

func addedReply(t *task.Task) Reply {
	return Reply{
		Text: fmt.Sprintf("✅ Task Added: **%s**", t.Title),
		HTML: fmt.Sprintf("✅ Task Added: <b>%s</b>", html.EscapeString(t.Title)),
	}
}

func listReply(tasks []*task.Task) Reply {
	text := make([]string, 0, len(tasks))
	htm := make([]string, 0, len(tasks))
	for i, t := range tasks {
		text = append(text, fmt.Sprintf("%d. %s", i+1, t.Summary()))
		htm = append(htm, fmt.Sprintf("%d. <b>%s</b>", i+1, html.EscapeString(t.Summary())))
	}
	return Reply{
		Text: "📋 Room To-Do List:\n" + strings.Join(text, "\n"),
		HTML: "📋 Room To-Do List:<br>" + strings.Join(htm, "<br>"),
	}
}

func doneReply(t *task.Task) Reply {
	return Reply{
		Text: fmt.Sprintf("✔️ Task Marked as Done: **%s**", t.Summary()),
		HTML: fmt.Sprintf("✔️ Task Marked as Done: <b>%s</b>", html.EscapeString(t.Summary())),
	}
}

func closedReply(t *task.Task) Reply {
	return Reply{
		Text: fmt.Sprintf("✖️ Task Closed: **%s**", t.Summary()),
		HTML: fmt.Sprintf("✖️ Task Closed: <b>%s</b>", html.EscapeString(t.Summary())),
	}
}

func logReply(n int, note string, t *task.Task) Reply {
	details := t.Details()
	return Reply{
		Text: fmt.Sprintf("📝 Log Added to Task #%d:\nLog: '%s'\n\nCurrent Task Details:\n%s", n, note, details),
		HTML: fmt.Sprintf("📝 Log Added to Task #%d:<br>Log: '%s'<br><br><b>Current Task Details:</b><br>%s",
			n, html.EscapeString(note), htmlLines(details)),
	}
}

func detailsReply(n int, t *task.Task) Reply {
	details := t.Details()
	return Reply{
		Text: fmt.Sprintf("🔍 Task #%d Details:\n%s", n, details),
		HTML: fmt.Sprintf("🔍 Task #%d Details:<br>%s", n, htmlLines(details)),
	}
}

func editReply(n int, from, to string) Reply {
	return Reply{
		Text: fmt.Sprintf("✏️ Task Edited: Task #%d title changed:\nFrom: %s\nTo: %s", n, from, to),
		HTML: fmt.Sprintf("✏️ Task Edited: Task #%d title changed:<br><b>From:</b> %s<br><b>To:</b> %s",
			n, html.EscapeString(from), html.EscapeString(to)),
	}
}

func savedReply(name string) Reply {
	return Reply{
		Text: fmt.Sprintf("💾 Lists Saved: The to-do lists have been saved to `%s`.", name),
		HTML: fmt.Sprintf("💾 Lists Saved: The to-do lists have been saved to <code>%s</code>.", html.EscapeString(name)),
	}
}

func saveFailedReply(err error) Reply {
	return plain(fmt.Sprintf("❌ Error Saving: An error occurred while saving the lists: %s", err))
}

func badFormatReply(name, format string) Reply {
	return Reply{
		Text: fmt.Sprintf("❌ Invalid Filename Format: Filename '%s' does not match the expected format: `%s`", name, format),
		HTML: fmt.Sprintf("❌ Invalid Filename Format: Filename '<code>%s</code>' does not match the expected format: <code>%s</code>",
			html.EscapeString(name), html.EscapeString(format)),
	}
}

func loadedReply(name string) Reply {
	return Reply{
		Text: fmt.Sprintf("📂 Lists Loaded: Successfully loaded to-do lists from `%s`.", name),
		HTML: fmt.Sprintf("📂 Lists Loaded: Successfully loaded to-do lists from <code>%s</code>.", html.EscapeString(name)),
	}
}

func loadFailedReply(name string) Reply {
	return Reply{
		Text: fmt.Sprintf("❌ Error Loading: Failed to load lists from `%s`. Check the filename and ensure it's a valid save file.", name),
		HTML: fmt.Sprintf("❌ Error Loading: Failed to load lists from <code>%s</code>. Check the filename and ensure it's a valid save file.", html.EscapeString(name)),
	}
}

func lastLoadedReply(name string) Reply {
	return Reply{
		Text: fmt.Sprintf("📂 Last List Loaded: Successfully loaded the most recent lists from `%s`.", name),
		HTML: fmt.Sprintf("📂 Last List Loaded: Successfully loaded the most recent lists from <code>%s</code>.", html.EscapeString(name)),
	}
}

func lastLoadFailedReply(name string) Reply {
	return Reply{
		Text: fmt.Sprintf("❌ Error Loading: Failed to load the most recent lists from `%s`. The file might be corrupted.", name),
		HTML: fmt.Sprintf("❌ Error Loading: Failed to load the most recent lists from <code>%s</code>. The file might be corrupted.", html.EscapeString(name)),
	}
}

func filesReply(names []string) Reply {
	text := make([]string, 0, len(names))
	htm := make([]string, 0, len(names))
	for i, n := range names {
		text = append(text, fmt.Sprintf("%d. `%s`", i+1, n))
		htm = append(htm, fmt.Sprintf("%d. <code>%s</code>", i+1, html.EscapeString(n)))
	}
	return Reply{
		Text: "📄 Available Save Files:\n" + strings.Join(text, "\n"),
		HTML: "📄 Available Save Files:<br>" + strings.Join(htm, "<br>"),
	}
}

func listFilesFailedReply(err error) Reply {
	return plain(fmt.Sprintf("❌ Error Listing Files: An error occurred while listing saved files: %s", err))
}

func unknownCommandReply(word string) Reply {
	return plain(fmt.Sprintf("Unknown command: `%s`. Type `!help` for a list of commands.", word))
}

func invalidArgumentReply(word string) Reply {
	return plain(fmt.Sprintf("Invalid argument for command `!%s`. Please check the usage with `!help %s`.", word, word))
}

func internalErrorReply(err error) Reply {
	return plain(fmt.Sprintf("An error occurred while processing your command: %s", err))
}

// unsavedWarning is appended when a change was applied but could not be persisted.
func unsavedWarning(r Reply, err error) Reply {
	note := fmt.Sprintf("⚠️ Warning: The change was applied but could not be saved: %s", err)
	r.Text += "\n\n" + note
	if r.HTML != "" {
		r.HTML += "<br><br>" + html.EscapeString(note)
	}
	return r
}

type usage struct {
	name  Name
	args  string
	about string
}

var usages = []usage{
	{Add, "<task>", "Add a new task."},
	{List, "", "List all tasks."},
	{Done, "<task_number>", "Mark a task as done and remove it."},
	{Close, "<task_number>", "Close a task without completing and remove it."},
	{Log, "<task_number> <note>", "Add a note to a task."},
	{Details, "<task_number>", "Show details of a task."},
	{Edit, "<task_number> <new_title>", "Edit a task's title."},
	{Clear, "", "Clear all tasks in the current room."},
	{Save, "", "Manually save the current state."},
	{Load, "<filename>", "Load state from a file."},
	{LoadLast, "", "Load the most recently saved state."},
	{ListFiles, "", "List all saved files."},
	{Help, "[command]", "Show this help message."},
}

func (u usage) syntax() string {
	if u.args == "" {
		return "!" + string(u.name)
	}
	return "!" + string(u.name) + " " + u.args
}

func aliasesOf(n Name) []string {
	var out []string
	for word, name := range names {
		if name == n && word != string(n) {
			out = append(out, word)
		}
	}
	return out
}

func helpReply(app, topic string) Reply {
	if topic != "" {
		if name, ok := Lookup(strings.TrimPrefix(topic, Prefix)); ok {
			for _, u := range usages {
				if u.name != name {
					continue
				}
				aliases := aliasesOf(name)
				slices.Sort(aliases)
				text := fmt.Sprintf("`%s`: %s", u.syntax(), u.about)
				htm := fmt.Sprintf("<code>%s</code>: %s", html.EscapeString(u.syntax()), u.about)
				if len(aliases) > 0 {
					text += "\nAliases: " + strings.Join(aliases, ", ")
					htm += "<br>Aliases: " + strings.Join(aliases, ", ")
				}
				return Reply{Text: text, HTML: htm}
			}
		}
	}
	text := []string{fmt.Sprintf("**%s Bot Commands:**", app)}
	htm := []string{fmt.Sprintf("<b>%s Bot Commands:</b>", html.EscapeString(app))}
	for _, u := range usages {
		text = append(text, fmt.Sprintf("`%s`: %s", u.syntax(), u.about))
		htm = append(htm, fmt.Sprintf("<code>%s</code>: %s", html.EscapeString(u.syntax()), u.about))
	}
	return Reply{Text: strings.Join(text, "\n"), HTML: strings.Join(htm, "<br>")}
}
