package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/bnema/waydriver/internal/ipc"
	"github.com/bnema/waydriver/internal/keywords"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// maxValueLen truncates long strings in results, e.g. screenshot data.
const maxValueLen = 64

var separator = regexp.MustCompile(`\t|\s{2,}`)

// ParseLine splits a console line into a keyword and its arguments. Cells
// are separated by a tab or two or more spaces, so single spaces stay part
// of the keyword name or argument.
func ParseLine(line string) (string, []string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	cells := separator.Split(line, -1)
	return cells[0], cells[1:]
}

// keywordResultMsg carries the outcome of one call.
type keywordResultMsg struct {
	line   string
	result any
	err    error
}

// ConsoleModel is an interactive keyword prompt against a daemon
type ConsoleModel struct {
	caller   ipc.Caller
	target   string
	keywords []keywords.Info

	input    textinput.Model
	viewport viewport.Model
	ready    bool
	busy     bool

	lines   []string
	history []string
	recall  int

	width int
}

// NewConsoleModel creates a console calling keywords through caller. target
// names the daemon in the header.
func NewConsoleModel(caller ipc.Caller, target string) *ConsoleModel {
	input := textinput.New()
	input.Prompt = PromptStyle.Render("> ")
	input.Placeholder = "Keyword    arg    arg"
	input.Focus()

	return &ConsoleModel{
		caller:   caller,
		target:   target,
		keywords: keywords.List(),
		input:    input,
		lines:    []string{SubtleStyle.Render("Type help for the keyword list, exit to quit.")},
	}
}

// Init initializes the model
func (m *ConsoleModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages
func (m *ConsoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		// header (2 lines) and input (2 lines)
		height := msg.Height - 4
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			return m, m.submit()
		case tea.KeyUp:
			m.recallHistory(-1)
			return m, nil
		case tea.KeyDown:
			m.recallHistory(1)
			return m, nil
		}

	case keywordResultMsg:
		m.busy = false
		if msg.err != nil {
			m.appendLine(FormatError(msg.err))
		} else if msg.result != nil {
			m.appendLine(SuccessStyle.Render(IconSuccess) + " " + FormatResult(msg.result))
		} else {
			m.appendLine(SuccessStyle.Render(IconSuccess))
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	// keys belong to the input, the viewport only scrolls with the mouse
	if _, isKey := msg.(tea.KeyMsg); m.ready && !isKey {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// submit handles the current input line and returns the call to run, if any.
func (m *ConsoleModel) submit() tea.Cmd {
	line := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if line == "" {
		return nil
	}
	m.history = append(m.history, line)
	m.recall = len(m.history)
	m.appendLine(PromptStyle.Render("> ") + line)

	switch strings.ToLower(line) {
	case "exit", "quit":
		return tea.Quit
	case "help":
		for _, k := range m.keywords {
			args := ""
			if len(k.Args) > 0 {
				args = "    " + strings.Join(k.Args, "    ")
			}
			m.appendLine("  " + KeyStyle.Render(k.Name) + SubtleStyle.Render(args))
		}
		return nil
	}

	name, args := ParseLine(line)
	m.busy = true
	caller := m.caller
	return func() tea.Msg {
		result, err := caller.Call(context.Background(), name, args...)
		return keywordResultMsg{line: line, result: result, err: err}
	}
}

func (m *ConsoleModel) recallHistory(delta int) {
	if len(m.history) == 0 {
		return
	}
	m.recall += delta
	if m.recall < 0 {
		m.recall = 0
	}
	if m.recall >= len(m.history) {
		m.recall = len(m.history)
		m.input.SetValue("")
		return
	}
	m.input.SetValue(m.history[m.recall])
	m.input.CursorEnd()
}

func (m *ConsoleModel) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.refresh()
}

func (m *ConsoleModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

// Lines returns the console transcript.
func (m *ConsoleModel) Lines() []string {
	return m.lines
}

// View renders the UI
func (m *ConsoleModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("waydriver console " + m.target))
	b.WriteString("\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if m.busy {
		b.WriteString(SubtleStyle.Render("running..."))
	} else {
		b.WriteString(m.input.View())
	}
	return b.String()
}

// FormatResult renders a keyword result on one line with long strings cut.
func FormatResult(result any) string {
	data, err := json.Marshal(truncate(result))
	if err != nil {
		return fmt.Sprint(result)
	}
	return string(data)
}

func truncate(v any) any {
	switch v := v.(type) {
	case string:
		if len(v) > maxValueLen {
			return fmt.Sprintf("%s... (%d bytes)", v[:maxValueLen], len(v))
		}
		return v
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = truncate(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = truncate(e)
		}
		return out
	}
	return v
}
