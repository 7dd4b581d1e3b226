package views

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rendis/leadtap/internal/engine/storage"
	"github.com/rendis/leadtap/internal/model"
	"github.com/rendis/leadtap/internal/tui/styles"
)

type focusArea int

const (
	focusTable focusArea = iota
	focusFilter
	focusJSON
)

// ResultsModel lists stored records with a filter and a detail panel.
type ResultsModel struct {
	dbPath   string
	records  []model.BusinessRecord
	filtered []model.BusinessRecord
	table    table.Model
	filter   textinput.Model
	focus    focusArea
	selected int
	width    int
	height   int
	err      error

	jsonScrollY int
	cardLines   []string
	jsonLines   []string
}

type recordsLoadedMsg struct {
	Records []model.BusinessRecord
	Err     error
}

func NewResultsModel(dbPath string) ResultsModel {
	filter := textinput.New()
	filter.Placeholder = "Type to filter..."
	filter.CharLimit = 50
	return ResultsModel{dbPath: dbPath, filter: filter, selected: -1}
}

func (m ResultsModel) Init() tea.Cmd {
	path := m.dbPath
	return func() tea.Msg {
		records, err := loadRecords(path)
		return recordsLoadedMsg{Records: records, Err: err}
	}
}

func loadRecords(dbPath string) ([]model.BusinessRecord, error) {
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Records()
}

func (m ResultsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
	case recordsLoadedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.records = msg.Records
		m.filtered = msg.Records
		m.updateLayout()
		m.selectRow(0)
		return m, nil
	case tea.KeyMsg:
		key := msg.String()
		if key == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.focus {
		case focusTable:
			switch key {
			case "esc", "q":
				return m, tea.Quit
			case "/", "tab":
				m.focus = focusFilter
				m.filter.Focus()
				return m, textinput.Blink
			case "2":
				m.focus = focusJSON
				return m, nil
			}
		case focusFilter:
			switch key {
			case "esc", "enter", "tab":
				m.focus = focusTable
				m.filter.Blur()
				return m, nil
			}
		case focusJSON:
			switch key {
			case "esc":
				m.focus = focusTable
			case "up", "k":
				m.jsonScrollY = max(m.jsonScrollY-1, 0)
			case "down", "j":
				m.jsonScrollY = min(m.jsonScrollY+1, max(len(m.jsonLines)-m.panelHeight(), 0))
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusTable:
		m.table, cmd = m.table.Update(msg)
		if c := m.table.Cursor(); c != m.selected && c < len(m.filtered) {
			m.selectRow(c)
		}
	case focusFilter:
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
	}
	return m, cmd
}

func (m *ResultsModel) selectRow(i int) {
	m.jsonScrollY = 0
	if i < 0 || i >= len(m.filtered) {
		m.selected = -1
		m.cardLines, m.jsonLines = nil, nil
		return
	}
	m.selected = i
	rec := m.filtered[i]
	m.cardLines = cardLines(rec)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		m.jsonLines = []string{"JSON error"}
		return
	}
	m.jsonLines = strings.Split(string(data), "\n")
}

func (m *ResultsModel) applyFilter() {
	m.filtered = FilterRecords(m.records, m.filter.Value())
	m.buildTable()
	m.selectRow(0)
}

// FilterRecords keeps records whose text fields contain every word of query,
// ignoring case and accents.
func FilterRecords(records []model.BusinessRecord, query string) []model.BusinessRecord {
	words := strings.Fields(normalize(query))
	if len(words) == 0 {
		return records
	}
	var out []model.BusinessRecord
	for _, r := range records {
		haystack := normalize(strings.Join([]string{r.Name, r.Category, r.Address, r.Provider, r.Query, r.Website}, " "))
		match := true
		for _, w := range words {
			if !strings.Contains(haystack, w) {
				match = false
				break
			}
		}
		if match {
			out = append(out, r)
		}
	}
	return out
}

// normalize lowercases s and strips diacritics, so "Café" matches "cafe".
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

func cardLines(r model.BusinessRecord) []string {
	lines := []string{r.Name}
	if r.Rating != nil {
		line := strconv.FormatFloat(*r.Rating, 'f', 1, 64)
		if r.ReviewCount != nil {
			line += fmt.Sprintf(" (%d reviews)", *r.ReviewCount)
		}
		lines = append(lines, line)
	}
	if r.Category != "" {
		lines = append(lines, r.Category)
	}
	lines = append(lines, "")

	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("%-10s %s", label, value))
		}
	}
	add("Source:", r.Provider)
	add("Address:", r.Address)
	add("Phone:", r.Phone)
	add("Website:", r.Website)
	add("Plus:", r.PlusCode)
	if r.Coordinates != nil {
		add("Coords:", fmt.Sprintf("%.6f, %.6f", r.Coordinates.Lat, r.Coordinates.Lng))
	}
	if r.Contacts != nil {
		add("Emails:", strings.Join(r.Contacts.Emails, ", "))
		add("Phones:", strings.Join(r.Contacts.Phones, ", "))
		add("Contact:", r.Contacts.Address)
	}
	for i, h := range r.OpeningHours {
		label := ""
		if i == 0 {
			label = "Hours:"
		}
		add(label, h)
	}
	add("URL:", r.SourceURL)
	return lines
}

func (m *ResultsModel) buildTable() {
	nameW, catW, provW, ratingW, phoneW := 30, 20, 12, 6, 18
	if m.width > 100 {
		extra := m.width - 100
		nameW += extra / 2
		catW += extra / 4
		phoneW += extra / 4
	}
	columns := []table.Column{
		{Title: "Name", Width: nameW},
		{Title: "Category", Width: catW},
		{Title: "Source", Width: provW},
		{Title: "Rating", Width: ratingW},
		{Title: "Phone", Width: phoneW},
	}
	rows := make([]table.Row, len(m.filtered))
	for i, r := range m.filtered {
		rating := ""
		if r.Rating != nil {
			rating = strconv.FormatFloat(*r.Rating, 'f', 1, 64)
		}
		rows[i] = table.Row{truncate(r.Name, nameW), truncate(r.Category, catW), r.Provider, rating, r.Phone}
	}

	s := table.DefaultStyles()
	s.Header = s.Header.BorderStyle(lipgloss.NormalBorder()).BorderForeground(styles.Muted).
		BorderBottom(true).Bold(true).Foreground(styles.Secondary)
	s.Selected = s.Selected.Foreground(lipgloss.Color("#FFFFFF")).Background(styles.Primary).Bold(true)

	m.table = table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(max(m.height/2-4, 5)),
		table.WithStyles(s),
	)
}

func (m ResultsModel) panelHeight() int {
	return max(m.height/2-6, 6)
}

func (m *ResultsModel) updateLayout() {
	m.buildTable()
}

func (m ResultsModel) View() string {
	if m.err != nil {
		return styles.ErrorText.Render(fmt.Sprintf("Error loading results: %v", m.err))
	}
	var b strings.Builder
	b.WriteString(styles.Title.Render(fmt.Sprintf("Results: %d records", len(m.records))))
	if len(m.filtered) != len(m.records) {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Render(fmt.Sprintf(" (showing %d)", len(m.filtered))))
	}
	b.WriteString("\n\n")

	filterStyle := lipgloss.NewStyle().Foreground(styles.Muted)
	if m.focus == focusFilter {
		filterStyle = lipgloss.NewStyle().Foreground(styles.Primary)
	}
	b.WriteString(filterStyle.Render("Filter: "))
	b.WriteString(m.filter.View())
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	w := max(m.width-2, 40)
	h := m.panelHeight()
	cardW := w * 2 / 5
	jsonW := w - cardW - 1

	card := styles.Box.Width(cardW - 2).Height(h).Render(window(m.cardLines, 0, h, cardW-4, "Select a record"))
	jsonBorder := styles.Muted
	if m.focus == focusJSON {
		jsonBorder = styles.Primary
	}
	js := styles.Box.BorderForeground(jsonBorder).Width(jsonW - 2).Height(h).
		Render(window(m.jsonLines, m.jsonScrollY, h, jsonW-4, "Select a record"))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, card, " ", js))
	b.WriteString("\n")

	status := "↑↓ navigate • / filter • 2 json • esc quit"
	switch m.focus {
	case focusFilter:
		status = "type to filter • esc back"
	case focusJSON:
		status = "↑↓ scroll • esc back to table"
	}
	b.WriteString(styles.StatusBar.Render(status))
	return b.String()
}

func window(lines []string, from, h, w int, empty string) string {
	if len(lines) == 0 {
		return lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).Render(empty)
	}
	from = max(min(from, len(lines)-h), 0)
	end := min(from+h, len(lines))
	out := make([]string, 0, end-from)
	for _, l := range lines[from:end] {
		out = append(out, truncate(l, w))
	}
	return strings.Join(out, "\n")
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
