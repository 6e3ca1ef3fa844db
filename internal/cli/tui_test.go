package cli

import (
	stderrors "errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/matzehuels/metarender/pkg/metadata"
)

func testRecords() []metadata.InfoRecord {
	return []metadata.InfoRecord{
		{Name: "libb", Version: "1.0", Build: "0", Subdir: "linux-64"},
		{Name: "liba", Version: "1.0", Build: "0", Subdir: "linux-64", Depends: []string{"libb 1.0 0"}},
	}
}

func press(m tea.Model, key string) (tea.Model, tea.Cmd) {
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	return m.Update(msg)
}

func TestOutputListNavigation(t *testing.T) {
	var m tea.Model = newOutputListModel(testRecords())

	m, _ = press(m, "k")
	if got := m.(OutputListModel).Cursor; got != 0 {
		t.Errorf("Cursor = %d after k at top, want 0", got)
	}
	m, _ = press(m, "j")
	m, _ = press(m, "j")
	if got := m.(OutputListModel).Cursor; got != 1 {
		t.Errorf("Cursor = %d, want 1 (clamped to last row)", got)
	}
	if view := m.View(); !strings.Contains(view, "liba") || !strings.Contains(view, "[2/2]") {
		t.Errorf("View() should list outputs with position:\n%s", view)
	}
}

func TestOutputListDetail(t *testing.T) {
	var m tea.Model = newOutputListModel(testRecords())
	m, _ = press(m, "j")
	m, _ = press(m, "enter")

	if !m.(OutputListModel).Detail {
		t.Fatal("enter should open the detail pane")
	}
	if view := m.View(); !strings.Contains(view, `"libb 1.0 0"`) {
		t.Errorf("detail view should show the record's depends:\n%s", view)
	}

	m, cmd := press(m, "esc")
	if m.(OutputListModel).Detail || cmd != nil {
		t.Error("esc should close the detail pane without quitting")
	}
	if _, cmd = press(m, "esc"); cmd == nil {
		t.Error("esc on the list should quit")
	}
}

func TestOutputListEmpty(t *testing.T) {
	var m tea.Model = newOutputListModel(nil)
	m, _ = press(m, "enter")
	if m.(OutputListModel).Detail {
		t.Error("enter on an empty list should do nothing")
	}
	if !strings.Contains(m.View(), "no outputs") {
		t.Errorf("View() = %q", m.View())
	}
}

func TestOutputListWindowSize(t *testing.T) {
	m, _ := newOutputListModel(testRecords()).Update(tea.WindowSizeMsg{Width: 80, Height: 4})
	if got := m.(OutputListModel).Height; got != 5 {
		t.Errorf("Height = %d, want minimum 5", got)
	}
}

func TestRecordsTable(t *testing.T) {
	out := recordsTable(testRecords())
	for _, want := range []string{"Output", "Version", "libb", "liba", "linux-64"} {
		if !strings.Contains(out, want) {
			t.Errorf("recordsTable() missing %q:\n%s", want, out)
		}
	}
}

func TestPrintError(t *testing.T) {
	var buf strings.Builder
	PrintError(&buf, stderrors.New("SCHEMA_ERROR: unknown section bogus"))
	if !strings.Contains(buf.String(), "SCHEMA_ERROR: unknown section bogus") {
		t.Errorf("PrintError() = %q", buf.String())
	}
}
