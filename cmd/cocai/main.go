// cocai runs an interactive Call of Cthulhu style session in the
// terminal: pick a campaign, act and discuss with the AI party, and
// resolve the Keeper's roll demands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/leon5354/Coc-AI-Runner/cocai/agents"
	"github.com/leon5354/Coc-AI-Runner/cocai/campaign"
	"github.com/leon5354/Coc-AI-Runner/cocai/config"
	"github.com/leon5354/Coc-AI-Runner/cocai/keeper"
	"github.com/leon5354/Coc-AI-Runner/cocai/memory"
	"github.com/leon5354/Coc-AI-Runner/cocai/memory/recall"
	"github.com/leon5354/Coc-AI-Runner/cocai/oracle"
	"github.com/leon5354/Coc-AI-Runner/cocai/rules"
	"github.com/leon5354/Coc-AI-Runner/cocai/session"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	keeperStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("105"))
	agentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	rollStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	statusStyle = lipgloss.NewStyle().Faint(true)
)

func main() {
	var (
		configPath   = flag.String("config", "", "path to config file")
		campaignName = flag.String("campaign", "", "campaign to play (filename stem)")
		logFile      = flag.String("log", "cocai.log", "log file path")
	)
	flag.Parse()

	// No .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	logOut, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer logOut.Close()
	logger := zerolog.New(logOut).With().Timestamp().Logger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctrl, camp, lib, err := buildSession(cfg, *campaignName, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(newModel(ctrl, camp), tea.WithAltScreen())

	// Newly authored scenarios show up without a restart prompt from
	// scenario-gen runs in another terminal.
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	go func() {
		if err := lib.Watch(watchCtx, func() { p.Send(libraryChangedMsg{}) }); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("campaign library watch stopped")
		}
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui: %v\n", err)
		os.Exit(1)
	}
}

func buildSession(cfg *config.Config, campaignName string, logger zerolog.Logger) (*session.Controller, *campaign.Campaign, *campaign.Library, error) {
	lib := campaign.NewLibrary(cfg.Paths.CampaignDir, logger)
	entries, err := lib.List()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("campaign library: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil, nil, fmt.Errorf("no campaigns in %s; generate one with scenario-gen", cfg.Paths.CampaignDir)
	}

	entry := entries[0]
	if campaignName != "" {
		found := false
		for _, e := range entries {
			if e.Name == campaignName {
				entry, found = e, true
				break
			}
		}
		if !found {
			return nil, nil, nil, fmt.Errorf("campaign %q not found in %s", campaignName, cfg.Paths.CampaignDir)
		}
	}

	camp, err := campaign.Load(entry.Path)
	if err != nil {
		return nil, nil, nil, err
	}

	provider, err := oracle.New(cfg.Oracle, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	tier := oracle.TierFor(cfg.Oracle.Provider)

	k := keeper.New(camp, provider, tier, logger)
	if cfg.Recall.Enabled {
		db, err := recall.Connect(cfg.Paths.RecallDB, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("recall: %w", err)
		}
		k.WithRecall(recall.NewIndex(db, camp.Title, logger), cfg.Recall.K)
	}

	party := make([]*agents.Investigator, 0, len(camp.AIParty))
	for _, member := range camp.AIParty {
		inv := agents.NewInvestigator(member, provider, tier, logger)
		if cfg.Memory.ContextTruncate > 0 {
			inv.ContextTruncate = cfg.Memory.ContextTruncate
		}
		party = append(party, inv)
	}

	mem := memory.NewStore(cfg.Paths.SaveDir, cfg.Memory.SummaryThreshold, logger)
	if err := mem.Load(entry.Name); err != nil {
		return nil, nil, nil, fmt.Errorf("memory: %w", err)
	}

	savePath := session.SavePath(cfg.Paths.SaveDir, entry.Name)
	ctrl := session.NewController(k, party, mem, rules.NewEngine(0), savePath, logger)

	state, err := session.LoadState(savePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("session save: %w", err)
	}
	if len(state.History) > 0 {
		ctrl.Restore(state)
	}
	return ctrl, camp, lib, nil
}

type inputMode int

const (
	modeAction inputMode = iota
	modeDiscuss
)

// sessionMsg carries the outcome of one blocking session step back
// into the update loop.
type sessionMsg struct {
	lines []string
	err   error
}

// libraryChangedMsg arrives from the campaign-dir watcher.
type libraryChangedMsg struct{}

type model struct {
	ctrl *session.Controller
	camp *campaign.Campaign

	vp          viewport.Model
	input       textinput.Model
	mode        inputMode
	busy        bool
	lines       []string
	err         error
	ready       bool
	newScenario bool
}

func newModel(ctrl *session.Controller, camp *campaign.Campaign) model {
	input := textinput.New()
	input.Placeholder = "What do you do?"
	input.Focus()
	input.CharLimit = 512

	m := model{ctrl: ctrl, camp: camp, input: input}
	if transcript := ctrl.Transcript(); len(transcript) > 0 {
		for _, entry := range transcript {
			m.lines = append(m.lines, renderEntry(entry))
		}
	} else {
		m.lines = append(m.lines, keeperStyle.Render(camp.Introduction))
	}
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 2
		footerHeight := 4
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - headerHeight - footerHeight
		}
		m.vp.SetContent(strings.Join(m.lines, "\n\n"))
		m.vp.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			if !m.busy && m.ctrl.Phase() == session.PhaseIdle {
				if m.mode == modeAction {
					m.mode = modeDiscuss
					m.input.Placeholder = "Discuss plan..."
				} else {
					m.mode = modeAction
					m.input.Placeholder = "What do you do?"
				}
			}
			return m, nil
		case tea.KeyCtrlP:
			if !m.busy && m.ctrl.Phase() == session.PhaseIdle {
				if err := m.ctrl.PassTurn(); err == nil {
					m.lines = append(m.lines, statusStyle.Render("— turn passed to the party —"))
					m.refresh()
				}
			}
			return m, nil
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			return m.submit()
		}

	case libraryChangedMsg:
		m.newScenario = true
		return m, nil

	case sessionMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.lines = append(m.lines, msg.lines...)
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	ctrl := m.ctrl

	switch ctrl.Phase() {
	case session.PhasePendingRoll:
		m.input.Reset()
		m.busy = true
		if text == "" {
			return m, func() tea.Msg {
				report, err := ctrl.AcceptRoll(context.Background())
				if err != nil {
					return sessionMsg{err: err}
				}
				return sessionMsg{lines: []string{
					rollStyle.Render(fmt.Sprintf("🎲 Result: %d", report.Roll)),
					keeperStyle.Render(report.Resolution),
				}}
			}
		}
		return m, func() tea.Msg {
			reply, err := ctrl.Negotiate(context.Background(), text)
			if err != nil {
				return sessionMsg{err: err}
			}
			lines := []string{userStyle.Render("(Negotiating) " + text), keeperStyle.Render(reply)}
			return sessionMsg{lines: lines}
		}

	case session.PhaseAgentActing:
		m.busy = true
		return m, func() tea.Msg {
			before := len(ctrl.Transcript())
			if _, err := ctrl.AdvanceAgent(context.Background()); err != nil {
				return sessionMsg{err: err}
			}
			var lines []string
			for _, entry := range ctrl.Transcript()[before:] {
				lines = append(lines, renderEntry(entry))
			}
			return sessionMsg{lines: lines}
		}

	default:
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		m.busy = true
		if m.mode == modeDiscuss {
			return m, func() tea.Msg {
				replies, err := ctrl.Discuss(context.Background(), text)
				if err != nil {
					return sessionMsg{err: err}
				}
				lines := []string{userStyle.Render("You: " + text)}
				for _, reply := range replies {
					lines = append(lines, agentStyle.Render(reply))
				}
				return sessionMsg{lines: lines}
			}
		}
		return m, func() tea.Msg {
			narration, err := ctrl.PlayerAct(context.Background(), text)
			if err != nil {
				return sessionMsg{err: err}
			}
			return sessionMsg{lines: []string{
				userStyle.Render("You: " + text),
				keeperStyle.Render(narration),
			}}
		}
	}
}

func (m *model) refresh() {
	if m.ready {
		m.vp.SetContent(strings.Join(m.lines, "\n\n"))
		m.vp.GotoBottom()
	}
}

func renderEntry(entry session.TranscriptEntry) string {
	switch entry.Role {
	case "user":
		return userStyle.Render("You: " + entry.Content)
	case "agent":
		return agentStyle.Render(entry.Content)
	default:
		return keeperStyle.Render(entry.Content)
	}
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}

	var status string
	switch {
	case m.busy:
		status = "the Keeper is watching..."
	case m.ctrl.Phase() == session.PhasePendingRoll:
		status = rollStyle.Render("🎲 THE KEEPER DEMANDS A ROLL — enter to roll d100, or type to negotiate")
	case m.ctrl.Phase() == session.PhaseAgentActing:
		if name, ok := m.ctrl.NextAgent(); ok {
			status = fmt.Sprintf("it is %s's turn — enter to advance", name)
		}
	default:
		if m.mode == modeDiscuss {
			status = "discuss mode — tab: action, ctrl+p: pass turn, esc: quit"
		} else {
			status = "action mode — tab: discuss, ctrl+p: pass turn, esc: quit"
		}
	}
	if m.newScenario {
		status += statusStyle.Render("  · campaign library changed, restart to load new scenarios")
	}
	if m.err != nil {
		status = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("error: " + m.err.Error())
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s\n%s",
		titleStyle.Render("🐙 "+m.camp.Title),
		m.vp.View(),
		statusStyle.Render(status),
		m.input.View(),
	)
}
