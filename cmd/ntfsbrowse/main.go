// Command ntfsbrowse is an interactive terminal browser over an NTFS
// volume image: navigate directories, type to fuzzy-filter the current
// listing, and copy a selected entry's full path to the clipboard.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	ntfslib "github.com/go-ntfs/ntfsfs/pkg/ntfs"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	copiedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)
)

// entryItem adapts an ntfslib.EntryInfo to bubbles/list's Item interface.
type entryItem struct {
	info ntfslib.EntryInfo
}

func (i entryItem) Title() string {
	if i.info.IsDirectory {
		return i.info.Name + "/"
	}
	return i.info.Name
}

func (i entryItem) Description() string {
	if i.info.IsDirectory {
		return "directory"
	}
	return i.info.SizeHuman
}

func (i entryItem) FilterValue() string { return i.info.Name }

type dirLoadedMsg struct {
	path    string
	entries []ntfslib.EntryInfo
	err     error
}

type model struct {
	mount       *ntfslib.Mount
	path        string
	allEntries  []ntfslib.EntryInfo
	list        list.Model
	spinner     spinner.Model
	loading     bool
	filterQuery string
	err         error
	copiedMsg   string
	width       int
	height      int
}

func initialModel(mount *ntfslib.Mount) model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = `\`
	l.SetShowStatusBar(false)
	// Filtering is driven by our own sahilm/fuzzy ranking over the full
	// directory instead of the built-in matcher, so disable list's own.
	l.SetFilteringEnabled(false)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	return model{mount: mount, path: `\`, list: l, spinner: s, loading: true}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, loadDir(m.mount, m.path))
}

func loadDir(mount *ntfslib.Mount, path string) tea.Cmd {
	return func() tea.Msg {
		entries, err := mount.ListDir(path)
		return dirLoadedMsg{path: path, entries: entries, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case dirLoadedMsg:
		m.loading = false
		m.copiedMsg = ""
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.path = msg.path
		m.allEntries = msg.entries
		m.filterQuery = ""
		m.list.Title = m.path
		m.list.SetItems(entriesToItems(msg.entries))
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q":
		if m.filterQuery == "" {
			return m, tea.Quit
		}
	case "esc":
		if m.filterQuery != "" {
			m.filterQuery = ""
			m.list.SetItems(entriesToItems(m.allEntries))
			return m, nil
		}
		if m.path != `\` {
			return m.navigateUp()
		}
		return m, tea.Quit
	case "backspace":
		if m.filterQuery != "" {
			m.filterQuery = m.filterQuery[:len(m.filterQuery)-1]
			m.list.SetItems(m.filteredItems())
			return m, nil
		}
	case "enter":
		return m.navigateInto()
	case "c":
		return m.copySelectedPath()
	default:
		if len(msg.String()) == 1 && msg.String() >= " " {
			m.filterQuery += msg.String()
			m.list.SetItems(m.filteredItems())
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// filteredItems ranks m.allEntries by m.filterQuery with sahilm/fuzzy and
// returns them best-match-first; an empty query returns everything in its
// original directory order.
func (m model) filteredItems() []list.Item {
	if m.filterQuery == "" {
		return entriesToItems(m.allEntries)
	}
	names := make([]string, len(m.allEntries))
	for i, e := range m.allEntries {
		names[i] = e.Name
	}
	matches := fuzzy.Find(m.filterQuery, names)
	items := make([]list.Item, len(matches))
	for i, match := range matches {
		items[i] = entryItem{info: m.allEntries[match.Index]}
	}
	return items
}

func (m model) navigateInto() (tea.Model, tea.Cmd) {
	selected, ok := m.list.SelectedItem().(entryItem)
	if !ok {
		return m, nil
	}
	if !selected.info.IsDirectory {
		return m, nil
	}
	m.loading = true
	return m, tea.Batch(m.spinner.Tick, loadDir(m.mount, selected.info.Path))
}

func (m model) navigateUp() (tea.Model, tea.Cmd) {
	parent := parentPath(m.path)
	m.loading = true
	return m, tea.Batch(m.spinner.Tick, loadDir(m.mount, parent))
}

func (m model) copySelectedPath() (tea.Model, tea.Cmd) {
	selected, ok := m.list.SelectedItem().(entryItem)
	if !ok {
		return m, nil
	}
	if err := clipboard.WriteAll(selected.info.Path); err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	m.copiedMsg = "copied " + selected.info.Path
	return m, nil
}

func entriesToItems(entries []ntfslib.EntryInfo) []list.Item {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = entryItem{info: e}
	}
	return items
}

func parentPath(path string) string {
	trimmed := strings.TrimSuffix(path, `\`)
	idx := strings.LastIndexByte(trimmed, '\\')
	if idx <= 0 {
		return `\`
	}
	return trimmed[:idx]
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(" ntfsbrowse "))
	b.WriteString("\n")
	b.WriteString(pathStyle.Render(m.path))
	if m.filterQuery != "" {
		b.WriteString("  filter: " + m.filterQuery)
	}
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString(m.spinner.View() + " loading...")
	case m.err != nil:
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
	default:
		b.WriteString(m.list.View())
	}

	if m.copiedMsg != "" {
		b.WriteString("\n")
		b.WriteString(copiedStyle.Render(m.copiedMsg))
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter: open dir  backspace/type: filter  c: copy path  esc: up  q: quit"))
	return b.String()
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: ntfsbrowse <image-path>")
		os.Exit(1)
	}

	mount, err := ntfslib.Open(context.Background(), ntfslib.Options{
		Path:     os.Args[1],
		Settings: ntfslib.DefaultSettings(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open failed: %v\n", err)
		os.Exit(1)
	}
	defer mount.Close()

	p := tea.NewProgram(initialModel(mount), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
