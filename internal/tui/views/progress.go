package views

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/tui/styles"
)

// Scan describes the run the progress view drives. Start blocks until the
// run ends and must honour ctx.
type Scan struct {
	Title  string
	DBPath string
	Stats  *model.Stats // counters Start updates; nil gets fresh ones
	Start  func(ctx context.Context, stats *model.Stats) error
}

// sharedState holds data shared between the scan goroutine and the TUI.
// Lives behind a pointer so it survives bubbletea's value copies.
type sharedState struct {
	mu     sync.Mutex
	stats  *model.Stats
	cancel context.CancelFunc
}

// ProgressModel shows live scan counters.
type ProgressModel struct {
	scan        Scan
	progress    progress.Model
	startTime   time.Time
	done        bool
	confirmQuit bool
	err         error
	width       int
	shared      *sharedState
}

type progressTickMsg time.Time

// ScanDoneMsg reports the end of the scan.
type ScanDoneMsg struct {
	Err error
}

// NavigateToResults asks the app to open the results of the scan.
type NavigateToResults struct {
	DBPath string
}

func NewProgressModel(scan Scan) ProgressModel {
	stats := scan.Stats
	if stats == nil {
		stats = &model.Stats{}
	}
	return ProgressModel{
		scan:      scan,
		progress:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		startTime: time.Now(),
		shared:    &sharedState{stats: stats},
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.startScan(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg {
		return progressTickMsg(t)
	})
}

func (m ProgressModel) startScan() tea.Cmd {
	shared := m.shared
	start := m.scan.Start
	return func() tea.Msg {
		if start == nil {
			return ScanDoneMsg{Err: errors.New("nothing to scan")}
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		shared.mu.Lock()
		shared.cancel = cancel
		stats := shared.stats
		shared.mu.Unlock()

		return ScanDoneMsg{Err: start(ctx, stats)}
	}
}

// Stop cancels a running scan.
func (m ProgressModel) Stop() {
	if cancel := m.shared.getCancel(); cancel != nil {
		cancel()
	}
}

// Done reports whether the scan has ended.
func (m ProgressModel) Done() bool { return m.done }

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.Stop()
			return m, tea.Quit
		case "enter":
			if m.done {
				return m, m.openResults()
			}
			m.confirmQuit = false
			return m, nil
		case "esc", "q":
			if m.done {
				return m, tea.Quit
			}
			if m.confirmQuit {
				m.Stop()
				m.confirmQuit = false
				return m, nil
			}
			m.confirmQuit = true
			return m, nil
		}
		m.confirmQuit = false
	case progressTickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case ScanDoneMsg:
		m.done = true
		m.err = msg.Err
		return m, nil
	}

	pModel, cmd := m.progress.Update(msg)
	m.progress = pModel.(progress.Model)
	return m, cmd
}

func (m ProgressModel) openResults() tea.Cmd {
	path := m.scan.DBPath
	return func() tea.Msg { return NavigateToResults{DBPath: path} }
}

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("Scanning: " + m.scan.Title))
	b.WriteString("\n\n")
	b.WriteString(styles.Box.Width(34).Render(m.renderStats()))
	b.WriteString("\n\n")

	stats := m.shared.getStats()
	var pct float64
	if stats.JobsTotal > 0 {
		pct = float64(stats.JobsDone.Load()) / float64(stats.JobsTotal)
	}
	b.WriteString(m.progress.ViewAs(pct))
	b.WriteString("\n\n")

	switch {
	case m.done:
		if m.err != nil && !errors.Is(m.err, context.Canceled) {
			b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Bold(true).
				Render(fmt.Sprintf("Complete! %d records stored", stats.RecordsStored.Load())))
			b.WriteString("\n")
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Render("Database: " + m.scan.DBPath))
		}
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("enter browse results • esc quit"))
	case m.confirmQuit:
		b.WriteString(styles.ErrorText.Render("Press ESC again to stop the scan"))
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("esc confirm stop • any key continue"))
	default:
		b.WriteString(styles.StatusBar.Render("esc stop • ctrl+c quit"))
	}
	return b.String()
}

func (m ProgressModel) renderStats() string {
	var sb strings.Builder
	stats := m.shared.getStats()
	elapsed := time.Since(m.startTime).Truncate(time.Second)
	done, total := stats.JobsDone.Load(), int64(stats.JobsTotal)

	row := func(label, value string, style lipgloss.Style) {
		sb.WriteString(styles.StatLabel.Render(label))
		sb.WriteString(style.Render(value))
		sb.WriteString("\n")
	}
	warn := func(n int64, color lipgloss.Color) lipgloss.Style {
		if n > 0 {
			return lipgloss.NewStyle().Foreground(color).Bold(true)
		}
		return styles.StatValue
	}

	row("Jobs:", fmt.Sprintf("%d/%d", done, total), styles.StatValue)
	row("Candidates:", fmt.Sprint(stats.Candidates.Load()), styles.StatValue)
	row("Found:", fmt.Sprint(stats.RecordsFound.Load()), styles.StatValue)
	row("Stored:", fmt.Sprint(stats.RecordsStored.Load()), styles.StatValue)
	row("Skipped:", fmt.Sprint(stats.Skipped.Load()), styles.StatValue)
	if n := stats.Blocked.Load(); n > 0 {
		row("Blocked:", fmt.Sprint(n), warn(n, styles.Warning))
	}
	errs := stats.Errors.Load()
	row("Errors:", fmt.Sprint(errs), warn(errs, styles.Error))
	row("Elapsed:", elapsed.String(), styles.StatValue)

	if done > 0 && total > 0 && !m.done {
		rate := float64(done) / elapsed.Seconds()
		eta := time.Duration(float64(total-done) / rate * float64(time.Second)).Truncate(time.Second)
		row("ETA:", "~"+eta.String(), styles.StatValue)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (s *sharedState) getCancel() context.CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel
}

func (s *sharedState) getStats() *model.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
