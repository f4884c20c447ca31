package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/todo/internal/core"
	"github.com/valter-silva-au/todo/pkg/models"
)

// Dashboard panel indices.
const (
	panelActive = iota
	panelCompleted
	panelAlerts
	panelCount
)

// priorityCycle is the order the p key steps through.
var priorityCycle = []models.Priority{models.PriorityAll, models.PriorityHigh, models.PriorityMedium, models.PriorityLow}

type dashboardModel struct {
	activePanel int
	cursor      int
	width       int
	height      int

	// Data.
	tasks    []models.Task
	progress core.Progress
	alerts   []alertSnapshot
	filter   models.Filter

	// State.
	loading bool
	err     error
	now     func() time.Time
}

type alertSnapshot struct {
	severity string
	message  string
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	tasks  []models.Task
	alerts []alertSnapshot
	err    error
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{
		activePanel: panelActive,
		loading:     true,
		filter:      models.Filter{Priority: models.PriorityAll},
		now:         time.Now,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadData
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			m.cursor = 0
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			m.cursor = 0
			return m, nil
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "j":
			if m.cursor < len(m.selectable())-1 {
				m.cursor++
			}
			return m, nil
		case "p":
			m.filter.Priority = nextPriority(m.filter.Priority)
			m.cursor = 0
			return m, nil
		case "x", " ":
			items := m.selectable()
			if m.cursor < len(items) {
				m.loading = true
				return m, toggleTask(items[m.cursor].ID)
			}
			return m, nil
		case "r":
			m.loading = true
			return m, loadData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.tasks = msg.tasks
		m.progress = core.ComputeProgress(msg.tasks)
		m.alerts = msg.alerts
		m.err = nil
		if n := len(m.selectable()); m.cursor >= n {
			m.cursor = max(n-1, 0)
		}
		return m, nil
	}

	return m, nil
}

// selectable returns the tasks of the focused panel in display order.
func (m dashboardModel) selectable() []models.Task {
	view := core.Project(m.tasks, m.filter)
	switch m.activePanel {
	case panelActive:
		return view.Active
	case panelCompleted:
		return view.Completed
	default:
		return nil
	}
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" todo ")
	help := helpStyle.Render("tab: switch panel | j/k: move | x: toggle done | p: priority filter | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	view := core.Project(m.tasks, m.filter)
	summary := fmt.Sprintf("%s %d%%  %d of %d done. %s  (priority: %s)",
		renderBar(m.progress.Percent, 20), m.progress.Percent,
		m.progress.Completed, m.progress.Total, m.progress.Message, m.filter.Priority)

	activePanel := m.renderTaskPanel(fmt.Sprintf("Active (%d)", len(view.Active)), view.Active, panelActive)
	completedPanel := m.renderTaskPanel(fmt.Sprintf("Completed (%d)", len(view.Completed)), view.Completed, panelCompleted)
	alertsPanel := m.renderAlertsPanel()

	// Available width for panels after accounting for margins.
	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		// Horizontal layout: three columns.
		colWidth := availableWidth / 3
		activePanel = m.applyPanelStyle(panelActive, activePanel, colWidth-4)
		completedPanel = m.applyPanelStyle(panelCompleted, completedPanel, colWidth-4)
		alertsPanel = m.applyPanelStyle(panelAlerts, alertsPanel, colWidth-4)
		body = lipgloss.JoinHorizontal(lipgloss.Top, activePanel, completedPanel, alertsPanel)
	} else {
		// Vertical layout: stacked.
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		activePanel = m.applyPanelStyle(panelActive, activePanel, panelWidth)
		completedPanel = m.applyPanelStyle(panelCompleted, completedPanel, panelWidth)
		alertsPanel = m.applyPanelStyle(panelAlerts, alertsPanel, panelWidth)
		body = lipgloss.JoinVertical(lipgloss.Left, activePanel, completedPanel, alertsPanel)
	}

	return fmt.Sprintf("%s  %s\n\n%s\n\n%s", title, summary, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderTaskPanel(title string, tasks []models.Task, panel int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")

	if len(tasks) == 0 {
		b.WriteString("  No tasks.")
		return b.String()
	}

	index := core.NewIndex(m.tasks)
	now := m.now()
	for i, t := range tasks {
		line := formatTaskLine(t, index[t.ID], now)
		if m.activePanel == panel && i == m.cursor {
			line = cursorStyle.Render(">") + line
		} else {
			line = " " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		sev := styleForSeverity(a.severity).Render(fmt.Sprintf("[%s]", strings.ToUpper(a.severity)))
		b.WriteString(fmt.Sprintf("  %s %s\n", sev, a.message))
	}

	b.WriteString(fmt.Sprintf("\n  Total: %d alert(s)", len(m.alerts)))

	return b.String()
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return severityHigh
	case "medium":
		return severityMedium
	case "low":
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

func nextPriority(p models.Priority) models.Priority {
	for i, c := range priorityCycle {
		if c == p {
			return priorityCycle[(i+1)%len(priorityCycle)]
		}
	}
	return models.PriorityAll
}

func toggleTask(id string) tea.Cmd {
	return func() tea.Msg {
		if Store == nil {
			return dataLoadedMsg{err: errStoreNotInitialized}
		}
		if _, err := Store.ToggleDone(id); err != nil {
			return dataLoadedMsg{err: fmt.Errorf("toggling task: %w", err)}
		}
		return loadData()
	}
}

func loadData() tea.Msg {
	result := dataLoadedMsg{}

	if Store == nil {
		result.err = errStoreNotInitialized
		return result
	}
	result.tasks = Store.Tasks()

	// Load alerts from AlertEngine.
	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate(result.tasks, time.Now())
		if err != nil {
			result.err = fmt.Errorf("loading alerts: %w", err)
			return result
		}
		result.alerts = make([]alertSnapshot, 0, len(alerts))

		// Sort alerts by severity: high first, then medium, then low.
		sort.SliceStable(alerts, func(i, j int) bool {
			return severityRank(string(alerts[i].Severity)) < severityRank(string(alerts[j].Severity))
		})

		for _, a := range alerts {
			result.alerts = append(result.alerts, alertSnapshot{
				severity: string(a.Severity),
				message:  a.Message,
			})
		}
	}

	return result
}

func severityRank(s string) int {
	switch s {
	case "high":
		return 0
	case "medium":
		return 1
	case "low":
		return 2
	default:
		return 3
	}
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI for browsing and completing tasks",
	Long: `Launch an interactive terminal dashboard showing active tasks, completed
tasks, and alerts.

Navigate between panels with Tab, move with j/k, toggle the selected task with
x, cycle the priority filter with p, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Store == nil {
			return errStoreNotInitialized
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		_, err := p.Run()
		if err != nil {
			return err
		}
		return flush(cmd)
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
