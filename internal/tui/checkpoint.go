package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/xxxsen/newsdesk/internal/model"
	"github.com/xxxsen/newsdesk/internal/refine"
)

// Resumer continues a suspended session with a human verdict.
type Resumer interface {
	Resume(ctx context.Context, s *refine.Session, answer refine.Answer) error
}

type mode int

const (
	modeChoose mode = iota
	modeFeedback
	modeWorking
	modeDone
)

type resumedMsg struct {
	err error
}

// Checkpoint shows the latest draft of a session and collects the
// approve or revise answer. The session is only read between resumes.
type Checkpoint struct {
	ctx      context.Context
	resumer  Resumer
	session  *refine.Session
	input    textinput.Model
	viewport viewport.Model
	mode     mode
	status   string
	header   string
	err      error
}

func NewCheckpoint(ctx context.Context, resumer Resumer, session *refine.Session) Checkpoint {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "What should change? Enter to submit, Esc to go back"
	ti.CharLimit = 0
	m := Checkpoint{
		ctx:      ctx,
		resumer:  resumer,
		session:  session,
		input:    ti,
		viewport: viewport.New(80, 20),
	}
	m.refresh()
	return m
}

func (m Checkpoint) Init() tea.Cmd {
	return nil
}

func (m Checkpoint) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		_, fh := draftBoxStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-fh-4)
		return m, nil
	case resumedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.mode = modeDone
			m.status = "Error: " + msg.err.Error()
			return m, tea.Quit
		}
		m.refresh()
		if m.mode == modeDone {
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.mode {
		case modeChoose:
			return m.updateChoose(msg)
		case modeFeedback:
			return m.updateFeedback(msg)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Checkpoint) updateChoose(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		return m.resume(refine.Answer{Satisfied: true})
	case "n", "N":
		m.mode = modeFeedback
		m.status = "Describe the changes you want, or leave empty to let the critic decide."
		return m, m.input.Focus()
	case "q":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Checkpoint) updateFeedback(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		feedback := m.input.Value()
		m.input.Reset()
		m.input.Blur()
		return m.resume(refine.Answer{Feedback: feedback})
	case tea.KeyEsc:
		m.input.Reset()
		m.input.Blur()
		m.mode = modeChoose
		m.status = choosePrompt
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Checkpoint) resume(answer refine.Answer) (tea.Model, tea.Cmd) {
	m.mode = modeWorking
	if answer.Satisfied {
		m.status = "Finishing..."
	} else {
		m.status = "Revising the draft..."
	}
	ctx, resumer, session := m.ctx, m.resumer, m.session
	return m, func() tea.Msg {
		return resumedMsg{err: resumer.Resume(ctx, session, answer)}
	}
}

// refresh snapshots the session into the view. Call only while no resume
// is in flight.
func (m *Checkpoint) refresh() {
	cp := m.session.Checkpoint()
	m.header = renderHeader(cp)
	m.viewport.SetContent(renderDraft(cp))
	m.viewport.GotoTop()
	if m.session.Done() {
		m.mode = modeDone
		m.status = "Session finished."
		return
	}
	m.mode = modeChoose
	m.status = choosePrompt
}

// Err reports the error that ended the session, if any.
func (m Checkpoint) Err() error {
	return m.err
}

func (m Checkpoint) View() string {
	var b strings.Builder
	b.WriteString(m.header)
	b.WriteString("\n")
	b.WriteString(draftBoxStyle.Render(m.viewport.View()))
	b.WriteString("\n")
	if m.mode == modeFeedback {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	b.WriteString(statusStyle.Render(m.status))
	return b.String()
}

const choosePrompt = "Satisfied with this draft? [y]es / [n]o, revise / [q]uit"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subtitleStyle = lipgloss.NewStyle().Bold(true)
	scoreStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	draftBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func renderHeader(cp refine.Checkpoint) string {
	score := mutedStyle.Render("unscored")
	if cp.Review != nil && cp.Review.Score != nil {
		score = scoreStyle.Render(fmt.Sprintf("score %.1f/10", *cp.Review.Score))
	}
	return fmt.Sprintf("%s  %s", subtitleStyle.Render(fmt.Sprintf("Iteration %d", cp.Iteration)), score)
}

func renderDraft(cp refine.Checkpoint) string {
	var b strings.Builder
	for _, seg := range model.ParseDraft(cp.Draft) {
		switch seg.Kind {
		case model.SegmentTitle:
			b.WriteString(titleStyle.Render(seg.Text))
		case model.SegmentSubtitle:
			b.WriteString(subtitleStyle.Render(seg.Text))
		default:
			b.WriteString(seg.Text)
		}
		b.WriteString("\n\n")
	}
	if cp.Review != nil {
		c := cp.Review.Comments
		if c.Strengths != "" {
			b.WriteString(subtitleStyle.Render("Strengths") + "\n" + c.Strengths + "\n\n")
		}
		if c.Improvements != "" {
			b.WriteString(subtitleStyle.Render("Areas for improvement") + "\n" + c.Improvements + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Run drives the checkpoint loop until the session ends or the user quits.
func Run(ctx context.Context, resumer Resumer, session *refine.Session) error {
	final, err := tea.NewProgram(NewCheckpoint(ctx, resumer, session), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return err
	}
	if cp, ok := final.(Checkpoint); ok {
		return cp.Err()
	}
	return nil
}
