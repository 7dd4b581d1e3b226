// Package tui shows a running scan and its stored results in the terminal.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/leadtap/internal/tui/views"
)

type viewID int

const (
	viewProgress viewID = iota
	viewResults
)

// App is the root bubbletea model.
type App struct {
	currentView viewID
	width       int
	height      int
	progress    views.ProgressModel
	results     views.ResultsModel
	scanErr     error
}

func NewApp(scan views.Scan) App {
	return App{currentView: viewProgress, progress: views.NewProgressModel(scan)}
}

func (a App) Init() tea.Cmd {
	return a.progress.Init()
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
	case views.ScanDoneMsg:
		a.scanErr = msg.Err
	case views.NavigateToResults:
		a.currentView = viewResults
		a.results = views.NewResultsModel(msg.DBPath)
		return a, tea.Batch(a.results.Init(), a.sizeCmd())
	}

	var cmd tea.Cmd
	var m tea.Model
	switch a.currentView {
	case viewProgress:
		m, cmd = a.progress.Update(msg)
		a.progress = m.(views.ProgressModel)
	case viewResults:
		m, cmd = a.results.Update(msg)
		a.results = m.(views.ResultsModel)
	}
	return a, cmd
}

func (a App) View() string {
	var content string
	switch a.currentView {
	case viewProgress:
		content = a.progress.View()
	case viewResults:
		content = a.results.View()
	}
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Top, content)
}

// sizeCmd sends a WindowSizeMsg so newly created views get the current terminal size.
func (a App) sizeCmd() tea.Cmd {
	w, h := a.width, a.height
	return func() tea.Msg {
		return tea.WindowSizeMsg{Width: w, Height: h}
	}
}

// Run shows scan until the user quits and returns the scan's error.
// Quitting before the scan ends cancels it.
func Run(scan views.Scan) error {
	p := tea.NewProgram(NewApp(scan), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return err
	}
	app := final.(App)
	if !app.progress.Done() {
		app.progress.Stop()
	}
	return app.scanErr
}
