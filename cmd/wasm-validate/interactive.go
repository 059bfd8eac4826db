package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/validator"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	okStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	fieldStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type browserState int

const (
	stateList browserState = iota
	stateFilter
	stateDetail
)

// browser lists per-function results and shows the error of the selected
// function in detail.
type browser struct {
	rep        *fileReport
	visible    []int
	filter     textinput.Model
	selected   int
	height     int
	state      browserState
	failedOnly bool
}

func newBrowser(rep *fileReport) *browser {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "func index or error text"
	ti.Width = 40

	b := &browser{rep: rep, filter: ti, height: 24}
	b.refilter()
	return b
}

func (b *browser) Init() tea.Cmd {
	return nil
}

func rowLabel(r *validator.FuncResult) string {
	if r.Err == nil {
		return fmt.Sprintf("func[%d] ok", r.Index)
	}
	return fmt.Sprintf("func[%d] %s", r.Index, describe(r.Err))
}

func (b *browser) refilter() {
	query := strings.ToLower(strings.TrimSpace(b.filter.Value()))
	b.visible = b.visible[:0]
	for i := range b.rep.Funcs {
		r := &b.rep.Funcs[i]
		if b.failedOnly && r.Err == nil {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(rowLabel(r)), query) {
			continue
		}
		b.visible = append(b.visible, i)
	}
	if b.selected >= len(b.visible) {
		b.selected = max(len(b.visible)-1, 0)
	}
}

func (b *browser) current() *validator.FuncResult {
	if len(b.visible) == 0 {
		return nil
	}
	return &b.rep.Funcs[b.visible[b.selected]]
}

func (b *browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.height = msg.Height
		return b, nil

	case tea.KeyMsg:
		if b.state == stateFilter {
			switch msg.String() {
			case "enter", "esc":
				b.filter.Blur()
				b.state = stateList
				return b, nil
			}
			var cmd tea.Cmd
			b.filter, cmd = b.filter.Update(msg)
			b.refilter()
			return b, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return b, tea.Quit

		case "up", "k":
			if b.state == stateList && b.selected > 0 {
				b.selected--
			}

		case "down", "j":
			if b.state == stateList && b.selected < len(b.visible)-1 {
				b.selected++
			}

		case "f":
			if b.state == stateList {
				b.failedOnly = !b.failedOnly
				b.refilter()
			}

		case "/":
			if b.state == stateList {
				b.state = stateFilter
				return b, b.filter.Focus()
			}

		case "enter":
			switch b.state {
			case stateList:
				if b.current() != nil {
					b.state = stateDetail
				}
			case stateDetail:
				b.state = stateList
			}

		case "esc":
			if b.state == stateDetail {
				b.state = stateList
			}
		}
	}
	return b, nil
}

func (b *browser) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("WASM Validator"))
	s.WriteString(" ")
	s.WriteString(b.rep.Path)
	s.WriteString("\n")
	failed := b.rep.numFailed()
	summary := fmt.Sprintf("%d functions, %d invalid", len(b.rep.Funcs), failed)
	if failed > 0 {
		s.WriteString(failStyle.Render(summary))
	} else {
		s.WriteString(okStyle.Render(summary))
	}
	s.WriteString("\n\n")

	switch b.state {
	case stateList, stateFilter:
		b.viewList(&s)
	case stateDetail:
		b.viewDetail(&s)
	}
	return s.String()
}

func (b *browser) viewList(s *strings.Builder) {
	if b.state == stateFilter || b.filter.Value() != "" {
		s.WriteString(b.filter.View())
		s.WriteString("\n\n")
	}
	if len(b.visible) == 0 {
		s.WriteString(helpStyle.Render("no matching functions"))
		s.WriteString("\n")
	}

	// Keep the selection inside a window that fits the terminal
	rows := max(b.height-8, 1)
	start := 0
	if b.selected >= rows {
		start = b.selected - rows + 1
	}
	end := min(start+rows, len(b.visible))
	for i := start; i < end; i++ {
		r := &b.rep.Funcs[b.visible[i]]
		if i == b.selected {
			s.WriteString(selectedStyle.Render("> " + rowLabel(r)))
		} else {
			status := okStyle.Render("ok")
			if r.Err != nil {
				status = failStyle.Render(describe(r.Err))
			}
			fmt.Fprintf(s, "  func[%d] %s", r.Index, status)
		}
		s.WriteString("\n")
	}

	s.WriteString("\n")
	if b.state == stateFilter {
		s.WriteString(helpStyle.Render("enter/esc done"))
	} else {
		s.WriteString(helpStyle.Render("↑/↓ select • enter details • f failures only • / filter • q quit"))
	}
}

func (b *browser) viewDetail(s *strings.Builder) {
	r := b.current()
	field := func(name, value string) {
		fmt.Fprintf(s, "%s %s\n", fieldStyle.Render(fmt.Sprintf("%-8s", name)), value)
	}

	field("function", fmt.Sprintf("%d", r.Index))
	field("body", fmt.Sprintf("0x%x, %d bytes", r.Offset, r.Size))
	if r.Err == nil {
		field("status", okStyle.Render("valid"))
	} else {
		field("status", failStyle.Render("invalid"))
		var e *errors.Error
		if errors.As(r.Err, &e) {
			field("kind", string(e.Kind))
			field("message", e.Message())
			if e.Offset >= 0 {
				field("offset", fmt.Sprintf("0x%x (+%d into body)", e.Offset, e.Offset-r.Offset))
			}
			if len(e.Path) > 0 {
				field("path", strings.Join(e.Path, "."))
			}
		} else {
			field("error", r.Err.Error())
		}
	}
	s.WriteString("\n")
	s.WriteString(helpStyle.Render("enter/esc back • q quit"))
}

func runBrowser(rep *fileReport) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.InvalidInput(errors.PhaseConfig, "interactive mode requires a terminal")
	}
	p := tea.NewProgram(newBrowser(rep), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
