package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

// Sim clock cadence: one in-game minute per real interval.
const simMinuteEvery = 2 * time.Second

// ConsoleUI is the BubbleTea model that runs the operator console.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	session      *SessionView
	logViewport  viewport.Model
	metaViewport viewport.Model
	ready        bool
	width        int
	height       int
	err          error
	busy         bool

	transcript []string

	// Night selection state
	showNightModal bool
	nights         []string
	nightMap       map[string]string
	selectedNight  int
	loadingNights  bool

	// Quit confirmation state
	showQuitModal bool

	paused   bool
	resolved bool
	notice   string
}

type nightsLoadedMsg struct {
	nights   []string
	nightMap map[string]string
	err      error
}

type sessionCreatedMsg struct {
	session *SessionView
	err     error
}

type sessionUpdatedMsg struct {
	session *SessionView
	err     error
}

type simTickMsg struct{}

var (
	logPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	callerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	lineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	operatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client) ConsoleUI {
	logVp := viewport.New(50, 20)
	logVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:         cfg,
		client:         client,
		logViewport:    logVp,
		metaViewport:   metaVp,
		showNightModal: true,
		loadingNights:  true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return m.loadNights()
}

func (m ConsoleUI) loadNights() tea.Cmd {
	return func() tea.Msg {
		names, nightMap, err := listNights(m.client, m.config.APIBaseURL)
		return nightsLoadedMsg{names, nightMap, err}
	}
}

func (m ConsoleUI) startNight(nightFile string) tea.Cmd {
	return func() tea.Msg {
		view, err := createSession(m.client, m.config.APIBaseURL, nightFile, m.config.Profile)
		return sessionCreatedMsg{view, err}
	}
}

func (m ConsoleUI) doAction(action string, body interface{}) tea.Cmd {
	return func() tea.Msg {
		view, err := postAction(m.client, m.config.APIBaseURL, m.session.ID, action, body)
		return sessionUpdatedMsg{view, err}
	}
}

func simTick() tea.Cmd {
	return tea.Tick(simMinuteEvery, func(time.Time) tea.Msg {
		return simTickMsg{}
	})
}

func clockLabel(minutes int) string {
	// Shift starts at 23:00; the sim clock counts minutes from there.
	total := (23*60 + minutes) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showNightModal {
		return m.updateNightModal(msg)
	}
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.logViewport, vpCmd = m.logViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true

	case simTickMsg:
		if m.resolved || m.paused || m.busy || m.session == nil {
			return m, simTick()
		}
		m.busy = true
		return m, tea.Batch(m.doAction("tick", nil), simTick())

	case sessionUpdatedMsg:
		m.busy = false
		if msg.err != nil {
			m.notice = msg.err.Error()
		} else {
			m.notice = ""
			m.absorb(msg.session)
		}
		m.writeLogContent()
		m.metaViewport.SetContent(m.writeMetadata())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	m.logViewport, vpCmd = m.logViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)
	return m, tea.Batch(vpCmd, mvCmd)
}

func (m ConsoleUI) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.showQuitModal = true
		return m, nil
	}

	if m.session == nil || m.busy {
		return m, nil
	}

	key := msg.String()
	switch key {
	case "a":
		if m.session.CallState == "incoming" {
			m.busy = true
			return m, m.doAction("answer", nil)
		}
	case "h":
		if m.session.CallState == "awaiting_response" || m.session.CallState == "displaying_media" {
			m.busy = true
			return m, m.doAction("hangup", nil)
		}
	case "m":
		if m.session.CallState == "displaying_media" {
			m.busy = true
			return m, m.doAction("media-complete", nil)
		}
	case "r":
		if m.session.CallState == "idle" && !m.resolved {
			m.busy = true
			return m, m.doAction("resolve", nil)
		}
	case "p":
		m.paused = !m.paused
		m.metaViewport.SetContent(m.writeMetadata())
	case "c":
		if err := clipboard.WriteAll(m.session.ID); err != nil {
			m.notice = "Could not copy session ID"
		} else {
			m.notice = "Session ID copied"
		}
		m.metaViewport.SetContent(m.writeMetadata())
	default:
		if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(m.session.Responses) {
			response := m.session.Responses[n-1]
			m.appendLine(operatorStyle.Render("You: ") + response.Text)
			m.busy = true
			return m, m.doAction("respond", map[string]string{"response_id": response.ID})
		}
	}

	return m, nil
}

// absorb merges a fresh session view into the model and appends transcript
// lines for whatever changed.
func (m *ConsoleUI) absorb(view *SessionView) {
	prev := m.session
	m.session = view

	if prev == nil {
		return
	}

	if view.MissedCalls > prev.MissedCalls {
		m.appendLine(systemStyle.Render("The ringing stops. You missed the call."))
	}

	if view.CallState == "incoming" && prev.CallState != "incoming" {
		m.appendLine(systemStyle.Render(fmt.Sprintf("Incoming call from %s. Press A to answer.", view.Caller)))
	}

	if view.SegmentID != "" && view.SegmentID != prev.SegmentID {
		m.appendLine(callerStyle.Render(view.Caller+": ") + lineStyle.Render(view.SegmentText))
		if view.SegmentMedia != "" {
			m.appendLine(systemStyle.Render("[media: " + view.SegmentMedia + "] Press M when done."))
		}
	}

	if len(view.CompletedCalls) > len(prev.CompletedCalls) {
		m.appendLine(systemStyle.Render("The line goes dead."))
	}

	if view.EndState != "" && prev.EndState == "" {
		m.resolved = true
		title := view.EndingTitle
		if title == "" {
			title = view.EndingID
		}
		m.appendLine("")
		m.appendLine(titleStyle.Render("— " + title + " —"))
		m.appendLine(systemStyle.Render("The night is over. Press Esc to leave the desk."))
	}
}

func (m *ConsoleUI) appendLine(line string) {
	m.transcript = append(m.transcript, line)
}

func (m *ConsoleUI) resize() {
	logWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - logWidth - 6

	m.logViewport.Width = logWidth - 2
	m.logViewport.Height = m.height - 5
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4

	m.writeLogContent()
	m.metaViewport.SetContent(m.writeMetadata())
}

func (m *ConsoleUI) writeLogContent() {
	logWidth := m.logViewport.Width - 6
	if logWidth < 20 {
		logWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("NIGHTLINE") + "\n\n")
	content.WriteString("Crisis line, graveyard shift. Keep them talking.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", logWidth)) + "\n\n")

	for _, line := range m.transcript {
		content.WriteString(wordwrap.String(line, logWidth) + "\n\n")
	}

	if m.session != nil && m.session.CallState == "awaiting_response" {
		for i, r := range m.session.Responses {
			content.WriteString(operatorStyle.Render(fmt.Sprintf("  %d. ", i+1)) + wordwrap.String(r.Text, logWidth-5) + "\n")
		}
		content.WriteString("\n")
	}

	if m.notice != "" {
		content.WriteString(errorStyle.Render(m.notice) + "\n")
	}

	m.logViewport.SetContent(content.String())
	m.logViewport.GotoBottom()
}

func (m *ConsoleUI) writeMetadata() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("SHIFT") + "\n\n")

	if m.session == nil {
		return content.String()
	}

	content.WriteString("Night:\n")
	content.WriteString(m.session.NightName + "\n\n")

	content.WriteString("Session:\n")
	content.WriteString(m.session.ID[:8] + "...\n\n")

	content.WriteString("Clock:\n")
	content.WriteString(clockLabel(m.session.TimeMinutes))
	if m.paused {
		content.WriteString(" (paused)")
	}
	content.WriteString("\n\n")

	content.WriteString(fmt.Sprintf("Missed calls: %d\n", m.session.MissedCalls))
	content.WriteString(fmt.Sprintf("Calls handled: %d\n\n", len(m.session.CompletedCalls)))

	if len(m.session.Evidence) > 0 {
		content.WriteString("Evidence:\n")
		for _, ev := range m.session.Evidence {
			content.WriteString("• " + ev + "\n")
		}
		content.WriteString("\n")
	}

	content.WriteString("Keys:\n")
	content.WriteString("• A: Answer call\n")
	content.WriteString("• 1-9: Respond\n")
	content.WriteString("• H: Hang up\n")
	content.WriteString("• M: Media done\n")
	content.WriteString("• R: End the night\n")
	content.WriteString("• P: Pause clock\n")
	content.WriteString("• C: Copy session ID\n")
	content.WriteString("• Ctrl+C: Quit\n")

	return content.String()
}

func (m ConsoleUI) updateNightModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case nightsLoadedMsg:
		m.loadingNights = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.nights = msg.nights
			m.nightMap = msg.nightMap
		}

	case sessionCreatedMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.showNightModal = false
		m.transcript = nil
		m.appendLine(systemStyle.Render("You plug in your headset. The board is quiet. For now."))
		if m.width > 0 && m.height > 0 {
			m.resize()
			m.ready = true
		}
		return m, simTick()

	case tea.KeyMsg:
		if m.loadingNights || m.err != nil {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyUp:
			if m.selectedNight > 0 {
				m.selectedNight--
			}
		case tea.KeyDown:
			if m.selectedNight < len(m.nights)-1 {
				m.selectedNight++
			}
		case tea.KeyEnter:
			if len(m.nights) > 0 && !m.busy {
				nightName := m.nights[m.selectedNight]
				m.busy = true
				return m, m.startNight(m.nightMap[nightName])
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				return m, nil
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Leave the Desk?"))
	content.WriteString("\n\n")
	content.WriteString("Callers who can't reach you tonight stay unreached.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to stay on shift"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderNightModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	if m.loadingNights {
		content.WriteString(modalTitleStyle.Render("Loading Nights..."))
		content.WriteString("\n\n")
		content.WriteString(systemStyle.Render("Fetching the shift roster..."))
	} else if m.err != nil {
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(fmt.Sprintf("Failed to load nights: %v", m.err)))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	} else if m.busy {
		content.WriteString(modalTitleStyle.Render("Starting Shift..."))
		content.WriteString("\n\n")
		content.WriteString(systemStyle.Render("Plugging in your headset..."))
	} else {
		content.WriteString(modalTitleStyle.Render("Select a Night"))
		content.WriteString("\n\n")

		for i, night := range m.nights {
			if i == m.selectedNight {
				content.WriteString(modalSelectedItemStyle.Render("▶ " + night))
			} else {
				content.WriteString(modalItemStyle.Render("  " + night))
			}
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showNightModal {
		return m.renderNightModal()
	}
	if m.showQuitModal {
		return m.renderQuitModal()
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	logWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - logWidth - 6

	logPanel := logPanelStyle.Width(logWidth).Height(m.height - 3).Render(
		m.logViewport.View(),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, logPanel, metaPanel)
}
