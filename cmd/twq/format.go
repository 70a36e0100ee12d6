package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/triggerware/triggerware-go/pkg/triggerware"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"})

	addedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"})

	deletedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#F25D94", Dark: "#F25D94"})
)

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// styled applies a lipgloss style only when writing to a terminal.
func styled(s lipgloss.Style, text string) string {
	if !stdoutIsTerminal() {
		return text
	}
	return s.Render(text)
}

func formatSignatureHeader(w io.Writer, sig []triggerware.ColumnSignature) {
	if len(sig) == 0 {
		return
	}
	cols := make([]string, len(sig))
	for i, c := range sig {
		cols[i] = fmt.Sprintf("%s:%s", c.Attribute, c.Type)
	}
	fmt.Fprintln(w, styled(headerStyle, strings.Join(cols, "\t")))
}

func formatRow(w io.Writer, row triggerware.Row, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(row)
	}
	vals := make([]string, len(row))
	for i, v := range row {
		vals[i] = formatValue(v)
	}
	fmt.Fprintln(w, strings.Join(vals, "\t"))
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return styled(dimStyle, "null")
	case string:
		return x
	case float64:
		// Integers arrive as float64 from JSON; print them without a
		// fractional part.
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(data)
	}
}

func formatDeltaRow(w io.Writer, marker string, style lipgloss.Style, row triggerware.Row) {
	vals := make([]string, len(row))
	for i, v := range row {
		vals[i] = formatValue(v)
	}
	fmt.Fprintln(w, styled(style, marker+" "+strings.Join(vals, "\t")))
}
