package main

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-validator/errors"
	"github.com/wippyai/wasm-validator/validator"
)

func sampleReport() *fileReport {
	mismatch := errors.TypeMismatch(0x2a, "i32", "i64").InFunc(3)
	return &fileReport{
		Path: "sample.wasm",
		Funcs: []validator.FuncResult{
			{Index: 2, Offset: 0x20, Size: 4},
			{Index: 3, Offset: 0x25, Size: 6, Err: mismatch},
			{Index: 4, Offset: 0x2c, Size: 3},
		},
	}
}

func keys(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, b *browser, msgs ...tea.Msg) {
	t.Helper()
	for _, msg := range msgs {
		m, _ := b.Update(msg)
		require.Same(t, b, m)
	}
}

func TestBrowserNavigation(t *testing.T) {
	b := newBrowser(sampleReport())
	require.Equal(t, []int{0, 1, 2}, b.visible)
	require.Contains(t, b.View(), "3 functions, 1 invalid")

	send(t, b, keys("k"))
	require.Equal(t, 0, b.selected)

	send(t, b, keys("j"), keys("j"), keys("j"))
	require.Equal(t, 2, b.selected)

	send(t, b, tea.KeyMsg{Type: tea.KeyUp})
	require.Equal(t, uint32(3), b.current().Index)
}

func TestBrowserDetail(t *testing.T) {
	b := newBrowser(sampleReport())
	send(t, b, keys("j"), tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, stateDetail, b.state)

	view := b.View()
	require.Contains(t, view, "type_mismatch")
	require.Contains(t, view, "expected i32, found i64")
	require.Contains(t, view, "0x2a (+5 into body)")
	require.Contains(t, view, "func[3]")

	send(t, b, tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, stateList, b.state)
}

func TestBrowserFailuresOnly(t *testing.T) {
	b := newBrowser(sampleReport())
	send(t, b, keys("j"), keys("j"), keys("f"))
	require.Equal(t, []int{1}, b.visible)
	require.Equal(t, 0, b.selected)

	send(t, b, keys("f"))
	require.Len(t, b.visible, 3)
}

func TestBrowserFilter(t *testing.T) {
	b := newBrowser(sampleReport())
	send(t, b, keys("/"))
	require.Equal(t, stateFilter, b.state)

	// Keys go to the filter while it has focus
	send(t, b, keys("f"), keys("u"), keys("n"), keys("c"), keys("["), keys("4"))
	require.Equal(t, stateFilter, b.state)
	require.Equal(t, []int{2}, b.visible)

	send(t, b, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, stateList, b.state)
	require.Contains(t, b.View(), "func[4]")

	send(t, b, keys("/"), tea.KeyMsg{Type: tea.KeyBackspace}, tea.KeyMsg{Type: tea.KeyBackspace})
	require.Len(t, b.visible, 3)
}

func TestBrowserQuit(t *testing.T) {
	b := newBrowser(sampleReport())
	_, cmd := b.Update(keys("q"))
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}
