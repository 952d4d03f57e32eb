package confirm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/sms-relay/internal/theme"
)

const previewWidth = 60

// Prompt asks the operator on a terminal before each post.
type Prompt struct {
	in  io.Reader
	out io.Writer
}

// NewPrompt creates a Prompt that reads keys from in and draws on out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out}
}

// Confirm shows the preview and waits for a yes/no answer. Ctrl+C, or
// cancellation of ctx, returns ErrAborted.
func (p *Prompt) Confirm(ctx context.Context, pv Preview) (bool, error) {
	fmt.Fprintln(p.out, RenderPreview(pv))

	publish := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Publish to %s?", pv.Poster)).
				Affirmative("Publish").
				Negative("Skip").
				Value(&publish),
		),
	).WithWidth(previewWidth).WithShowHelp(true)
	form.SubmitCmd = tea.Quit
	form.CancelCmd = tea.Quit

	prog := tea.NewProgram(
		form,
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
	)

	final, err := prog.Run()
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, tea.ErrProgramKilled) {
			return false, ErrAborted
		}
		return false, fmt.Errorf("running confirmation prompt: %w", err)
	}

	if f, ok := final.(*huh.Form); ok && f.State == huh.StateAborted {
		return false, ErrAborted
	}

	return publish, nil
}

// RenderPreview draws the post preview panel.
func RenderPreview(pv Preview) string {
	var b strings.Builder

	b.WriteString(theme.HeaderStyle.Render("New SMS"))
	b.WriteString("\n")

	field := func(label, value string) {
		b.WriteString(theme.LabelStyle.Render(fmt.Sprintf("%-8s", label)))
		b.WriteString(theme.ValueStyle.Render(value))
		b.WriteString("\n")
	}

	field("From", pv.Phone)
	if !pv.SentAt.IsZero() {
		sent := pv.SentAt.Format("Jan 2, 2006 3:04 PM")
		if pv.Stale {
			sent += theme.HelpStyle.Render(" (delayed)")
		}
		field("Sent", sent)
	}
	field("Message", pv.MessageID)

	body := lipgloss.NewStyle().Width(previewWidth - 4).Render(pv.Text)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		b.String(),
		theme.PanelStyle.Render(body),
	)
}
