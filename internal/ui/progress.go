package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// StepStatus is the state of one step
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepComplete
	StepFailed
	StepSkipped
)

// Step is one line of a Progress display
type Step struct {
	Number  int
	Name    string
	Status  StepStatus
	Message string // e.g., "-52 dBm", "retrying"
}

// Progress is a bar plus a step list
type Progress struct {
	Label   string
	Steps   []Step
	Current int
	Percent float64
	Width   int
	bar     progress.Model
}

// NewProgress creates a display with one pending step per name
func NewProgress(label string, names ...string) *Progress {
	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{Number: i + 1, Name: name}
	}
	p := &Progress{Label: label, Steps: steps}
	return p.SetWidth(GetTerminalWidth())
}

// SetWidth sets the rendering width and resizes the bar
func (p *Progress) SetWidth(width int) *Progress {
	p.Width = width
	barWidth := width - 20
	if barWidth < 20 {
		barWidth = 20
	}
	if barWidth > 50 {
		barWidth = 50
	}
	p.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
	)
	return p
}

// UpdateStep sets the status and note of a step. Out of range numbers
// are ignored.
func (p *Progress) UpdateStep(number int, status StepStatus, message string) {
	if number < 1 || number > len(p.Steps) {
		return
	}
	p.Steps[number-1].Status = status
	p.Steps[number-1].Message = message

	if status == StepRunning {
		p.Current = number
		return
	}
	done := 0
	for _, s := range p.Steps {
		if s.Status == StepComplete || s.Status == StepSkipped {
			done++
		}
	}
	p.Percent = float64(done) / float64(len(p.Steps))
}

// StartStep marks a step as running
func (p *Progress) StartStep(number int, message string) {
	p.UpdateStep(number, StepRunning, message)
}

// CompleteStep marks a step as complete
func (p *Progress) CompleteStep(number int, message string) {
	p.UpdateStep(number, StepComplete, message)
}

// FailStep marks a step as failed
func (p *Progress) FailStep(number int, message string) {
	p.UpdateStep(number, StepFailed, message)
}

// SkipStep marks a step as skipped
func (p *Progress) SkipStep(number int, message string) {
	p.UpdateStep(number, StepSkipped, message)
}

// Render returns the bar and the step list
func (p *Progress) Render() string {
	var b strings.Builder

	if p.Label != "" {
		b.WriteString(ProgressLabelStyle.Render(p.Label))
		b.WriteString("\n\n")
	}

	bar := fmt.Sprintf("%s  %3.0f%%  [%d/%d]", p.bar.ViewAs(p.Percent), p.Percent*100, p.Current, len(p.Steps))
	b.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(bar))
	b.WriteString("\n\n")

	lines := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		lines = append(lines, p.renderStepLine(step))
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

// RenderStepLine renders a single step for incremental output
func (p *Progress) RenderStepLine(number int) string {
	if number < 1 || number > len(p.Steps) {
		return ""
	}
	return p.renderStepLine(p.Steps[number-1])
}

func (p *Progress) renderStepLine(step Step) string {
	var (
		marker string
		style  lipgloss.Style
	)
	switch step.Status {
	case StepComplete:
		marker, style = StepMarkerComplete, StepCompleteStyle
	case StepRunning:
		marker, style = StepMarkerRunning, StepRunningStyle
	case StepFailed:
		marker, style = FailureMarker, ErrorTitleStyle
	case StepSkipped:
		marker, style = StepMarkerSkipped, StepPendingStyle
	default:
		marker, style = StepMarkerPending, StepPendingStyle
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("  [%d/%d] ", step.Number, len(p.Steps)))
	b.WriteString(style.Render(step.Name))

	// align markers in one column
	padding := 45 - lipgloss.Width(step.Name)
	if padding < 1 {
		padding = 1
	}
	b.WriteString(strings.Repeat(" ", padding))
	b.WriteString(style.Render(marker))

	if step.Message != "" {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + step.Message + ")"))
	}
	return b.String()
}

// String implements fmt.Stringer
func (p *Progress) String() string {
	return p.Render()
}
