package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/datar-psa/evalkit/api"
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#16858E")).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2CD7C7"))
	roleStyle  = lipgloss.NewStyle().Bold(true)
)

// RenderTrace writes every step of t as a bordered panel.
func RenderTrace(w io.Writer, t Trace) error {
	panels := make([]string, 0, len(t))
	for _, step := range t {
		body, err := renderValue(step.Value)
		if err != nil {
			return fmt.Errorf("render %s: %w", step.Title, err)
		}
		panels = append(panels, panelStyle.Render(titleStyle.Render(step.Title)+"\n"+body))
	}
	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, panels...))
	return err
}

func renderValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case api.Messages:
		var b strings.Builder
		for i, m := range val {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(roleStyle.Render(string(m.Role) + ":"))
			b.WriteString(" ")
			b.WriteString(m.Content)
		}
		return b.String(), nil
	default:
		data, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
