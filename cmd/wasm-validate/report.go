package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/validator"
)

// fileReport is the outcome for one input file. Funcs is set only in
// per-function mode.
type fileReport struct {
	Err      error
	Path     string
	Funcs    []validator.FuncResult
	NumFuncs int
}

func (r *fileReport) failed() bool {
	if r.Err != nil {
		return true
	}
	return r.numFailed() > 0
}

func (r *fileReport) numFailed() int {
	n := 0
	for i := range r.Funcs {
		if r.Funcs[i].Err != nil {
			n++
		}
	}
	return n
}

// printer renders reports with styles bound to its writer, so output to a
// pipe or buffer carries no escape codes.
type printer struct {
	w    io.Writer
	ok   lipgloss.Style
	fail lipgloss.Style
	dim  lipgloss.Style
	name lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	r := lipgloss.NewRenderer(w)
	return &printer{
		w:    w,
		ok:   r.NewStyle().Foreground(lipgloss.Color("#90EE90")),
		fail: r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		dim:  r.NewStyle().Foreground(lipgloss.Color("#666666")),
		name: r.NewStyle().Bold(true),
	}
}

func (p *printer) print(rep *fileReport) {
	switch {
	case rep.Err != nil:
		fmt.Fprintf(p.w, "%s: %s\n  %s\n", p.name.Render(rep.Path), p.fail.Render("invalid"), rep.Err)
	case rep.Funcs == nil:
		fmt.Fprintf(p.w, "%s: %s %s\n", p.name.Render(rep.Path), p.ok.Render("ok"),
			p.dim.Render(fmt.Sprintf("(%d functions)", rep.NumFuncs)))
	default:
		p.printFuncs(rep)
	}
}

func (p *printer) printFuncs(rep *fileReport) {
	fmt.Fprintf(p.w, "%s:\n", p.name.Render(rep.Path))
	for _, r := range rep.Funcs {
		label := fmt.Sprintf("  %-10s", fmt.Sprintf("func[%d]", r.Index))
		if r.Err == nil {
			fmt.Fprintf(p.w, "%s %s %s\n", label, p.ok.Render("ok  "),
				p.dim.Render(fmt.Sprintf("0x%x, %d bytes", r.Offset, r.Size)))
			continue
		}
		fmt.Fprintf(p.w, "%s %s %s\n", label, p.fail.Render("FAIL"), describe(r.Err))
	}

	failed := rep.numFailed()
	summary := fmt.Sprintf("  %d of %d functions invalid", failed, len(rep.Funcs))
	if failed == 0 {
		fmt.Fprintln(p.w, p.ok.Render(summary))
	} else {
		fmt.Fprintln(p.w, p.fail.Render(summary))
	}
}

// describe formats a function error without the path already shown in the
// row label.
func describe(err error) string {
	var e *errors.Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	s := string(e.Kind)
	if msg := e.Message(); msg != "" {
		s += ": " + msg
	}
	if e.Offset >= 0 {
		s += fmt.Sprintf(" (at offset 0x%x)", e.Offset)
	}
	return s
}
