// Package tui provides a Bubble Tea terminal user interface for attachment-downloader.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/handiism/attachment-downloader/internal/download"
	"github.com/handiism/attachment-downloader/internal/model"
	"github.com/sahilm/fuzzy"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500")).
			Bold(true)
)

// Downloader is the part of download.Coordinator the TUI drives.
type Downloader interface {
	DownloadIfNeeded(att model.Attachment, parentKey string)
	Cancel(key string, libraryID model.LibraryIdentifier)
	Stop()
	BatchData() (progress int, hasProgress bool, remaining, total int)
}

// Item is one attachment row.
type Item struct {
	Attachment model.Attachment
	ParentKey  string
}

// Status is the download state shown for a row.
type Status int

const (
	StatusIdle Status = iota
	StatusDownloading
	StatusReady
	StatusFailed
	StatusCancelled
)

type row struct {
	item     Item
	status   Status
	progress int
	err      error
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	library    model.LibraryIdentifier
	downloader Downloader
	updates    <-chan download.Update
	onReady    func(download.Update)

	rows   []row
	index  map[string]int
	cursor int // position in visible()

	filterInput  textinput.Model
	filterActive bool
	filteredIdx  []int // nil when no filter is applied

	spinner  spinner.Model
	progress progress.Model

	batchPercent   int
	batchRemaining int
	batchTotal     int

	quitting bool
	width    int
	height   int
}

// NewModel creates a new TUI model listing items of library.
// updates must be a subscription to the same downloader.
func NewModel(library model.LibraryIdentifier, items []Item, downloader Downloader, updates <-chan download.Update) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 50

	ti := textinput.New()
	ti.Placeholder = "filter by title"
	ti.CharLimit = 100
	ti.Width = 40

	m := Model{
		library:     library,
		downloader:  downloader,
		updates:     updates,
		rows:        make([]row, 0, len(items)),
		index:       make(map[string]int, len(items)),
		filterInput: ti,
		spinner:     sp,
		progress:    prog,
	}
	for i, item := range items {
		status := StatusIdle
		if file, ok := item.Attachment.File(); ok && file.Location == model.LocationLocal {
			status = StatusReady
		}
		m.rows = append(m.rows, row{item: item, status: status})
		m.index[item.Attachment.Key] = i
	}
	return m
}

// WithReadyHook returns a copy of m that runs hook for every ready update of
// its library. The hook runs as a command, off the event loop.
func (m Model) WithReadyHook(hook func(download.Update)) Model {
	m.onReady = hook
	return m
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.updates), tickBatch())
}

// Message types
type (
	// UpdateMsg carries a download update from the coordinator.
	UpdateMsg struct {
		Update download.Update
	}

	// UpdatesClosedMsg is sent when the update subscription ends.
	UpdatesClosedMsg struct{}

	// TickMsg is for periodic batch progress polling.
	TickMsg struct{}
)

// waitForUpdate blocks on the subscription and delivers the next update.
func waitForUpdate(updates <-chan download.Update) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return UpdatesClosedMsg{}
		}
		return UpdateMsg{Update: u}
	}
}

func runHook(hook func(download.Update), u download.Update) tea.Cmd {
	return func() tea.Msg {
		hook(u)
		return nil
	}
}

func tickBatch() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 20
		if m.progress.Width > 80 {
			m.progress.Width = 80
		}
		if m.progress.Width < 20 {
			m.progress.Width = 20
		}
		return m, nil

	case tea.KeyMsg:
		if m.filterActive {
			return m.updateFilter(msg)
		}

		visible := m.visible()
		switch msg.String() {
		case "ctrl+c", "q":
			m.downloader.Stop()
			m.quitting = true
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(visible)-1 {
				m.cursor++
			}

		case "enter":
			if len(visible) > 0 {
				m.startRow(visible[m.cursor])
			}

		case "a":
			for _, i := range visible {
				if m.rows[i].status != StatusReady {
					m.startRow(i)
				}
			}

		case "c":
			if len(visible) > 0 {
				att := m.rows[visible[m.cursor]].item.Attachment
				m.downloader.Cancel(att.Key, att.LibraryID)
			}

		case "/":
			m.filterActive = true
			m.filterInput.Focus()
			return m, textinput.Blink

		case "esc":
			m.clearFilter()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case UpdateMsg:
		if m.applyUpdate(msg.Update) && msg.Update.Kind == download.KindReady && m.onReady != nil {
			cmds = append(cmds, runHook(m.onReady, msg.Update))
		}
		cmds = append(cmds, waitForUpdate(m.updates))

	case UpdatesClosedMsg:
		m.updates = nil

	case TickMsg:
		percent, ok, remaining, total := m.downloader.BatchData()
		if !ok {
			percent = 0
		}
		m.batchPercent = percent
		m.batchRemaining = remaining
		m.batchTotal = total
		cmds = append(cmds, m.progress.SetPercent(float64(percent)/100), tickBatch())

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.downloader.Stop()
		m.quitting = true
		return m, tea.Quit
	case "esc":
		m.clearFilter()
		return m, nil
	case "enter":
		// Keep the filter, return to navigation.
		m.filterActive = false
		m.filterInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	m.applyFilter()
	return m, cmd
}

// visible returns the row indices currently shown.
func (m Model) visible() []int {
	if m.filteredIdx != nil {
		return m.filteredIdx
	}
	all := make([]int, len(m.rows))
	for i := range all {
		all[i] = i
	}
	return all
}

func (m *Model) clearFilter() {
	m.filterActive = false
	m.filteredIdx = nil
	m.filterInput.SetValue("")
	m.filterInput.Blur()
	m.cursor = 0
}

// applyFilter fuzzy matches the query against row titles.
func (m *Model) applyFilter() {
	query := m.filterInput.Value()
	if query == "" {
		m.filteredIdx = nil
		m.cursor = 0
		return
	}

	lowerTitles := make([]string, len(m.rows))
	for i, r := range m.rows {
		lowerTitles[i] = strings.ToLower(rowTitle(r))
	}

	matches := fuzzy.Find(strings.ToLower(query), lowerTitles)
	m.filteredIdx = make([]int, len(matches))
	for i, match := range matches {
		m.filteredIdx[i] = match.Index
	}
	m.cursor = 0
}

func rowTitle(r row) string {
	if r.item.Attachment.Title != "" {
		return r.item.Attachment.Title
	}
	return r.item.Attachment.Key
}

func (m *Model) startRow(i int) {
	r := &m.rows[i]
	r.err = nil
	m.downloader.DownloadIfNeeded(r.item.Attachment, r.item.ParentKey)
}

// applyUpdate reports whether the update matched a row.
func (m *Model) applyUpdate(u download.Update) bool {
	if u.LibraryID != m.library {
		return false
	}
	i, ok := m.index[u.Key]
	if !ok {
		return false
	}

	r := &m.rows[i]
	switch u.Kind {
	case download.KindProgress:
		r.status = StatusDownloading
		r.progress = u.Progress
		r.err = nil
	case download.KindReady:
		r.status = StatusReady
		r.progress = 100
		r.err = nil
	case download.KindFailed:
		r.status = StatusFailed
		r.err = u.Err
	case download.KindCancelled:
		r.status = StatusCancelled
		r.progress = 0
	}
	return true
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	// Header
	b.WriteString(titleStyle.Render("Attachment Downloader"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Library %s, %d attachment(s)", m.library, len(m.rows))))
	b.WriteString("\n\n")

	if len(m.rows) == 0 {
		b.WriteString(warningStyle.Render("No attachments in this library. Import a manifest first."))
		b.WriteString("\n")
	}

	if m.filterActive || m.filteredIdx != nil {
		b.WriteString(subtitleStyle.Render("Filter: "))
		b.WriteString(m.filterInput.View())
		b.WriteString("\n\n")
	}

	for pos, i := range m.visible() {
		cursor := "  "
		if pos == m.cursor {
			cursor = selectedStyle.Render("> ")
		}
		b.WriteString(cursor)
		b.WriteString(m.renderRow(m.rows[i]))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.batchRemaining > 0 {
		b.WriteString(subtitleStyle.Render("Batch progress:"))
		b.WriteString("\n")
		b.WriteString(m.progress.ViewAs(float64(m.batchPercent) / 100))
		b.WriteString("\n")
		b.WriteString(infoStyle.Render(fmt.Sprintf("Active: %d/%d", m.batchRemaining, m.batchTotal)))
		b.WriteString("\n")
	}

	// Footer
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("↑/↓: move • enter: download • a: download all • c: cancel • /: filter • q: quit"))

	return b.String()
}

func (m Model) renderRow(r row) string {
	label := fmt.Sprintf("%-40s", truncate(rowTitle(r), 40))

	switch r.status {
	case StatusDownloading:
		return infoStyle.Render(fmt.Sprintf("%s %s %3d%%", m.spinner.View(), label, r.progress))
	case StatusReady:
		return successStyle.Render("✓ " + label + " ready")
	case StatusFailed:
		msg := "failed"
		if r.err != nil {
			msg = r.err.Error()
		}
		return errorStyle.Render("✗ " + label + " " + msg)
	case StatusCancelled:
		return warningStyle.Render("! " + label + " cancelled")
	default:
		return dimStyle.Render("• " + label)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// Run starts the TUI application.
func Run(m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
