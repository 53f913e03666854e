package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/idiolect/internal/style"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// stdout and stderr are swapped out by tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(stderr, colorize(colorGreen, "ok "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(stderr, colorize(colorRed, "error: "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(stderr, colorize(colorYellow, "warning: "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// printSummary renders a summary as an aligned, human-readable block.
func printSummary(key string, s style.Summary) {
	fmt.Fprintf(stdout, "%s  (%d messages)\n", colorize(colorBold, key), s.TotalMessages)
	if s.TotalMessages == 0 {
		fmt.Fprintln(stdout, "  nothing learned yet")
		return
	}
	fmt.Fprintf(stdout, "  %-16s %s (%.2f)\n", "politeness", colorize(colorCyan, s.PolitenessLabel), s.PolitenessScore)
	fmt.Fprintf(stdout, "  %-16s %d\n", "average length", s.AverageLength)

	rows := []struct {
		label   string
		entries []style.Entry
	}{
		{"first person", s.FirstPersonUsage},
		{"sentence enders", s.TopSentenceEnders},
		{"fillers", s.TopFillerWords},
		{"words", s.TopWords},
		{"phrases", s.TopPhrases},
	}
	for _, row := range rows {
		if len(row.entries) == 0 {
			continue
		}
		parts := make([]string, len(row.entries))
		for i, e := range row.entries {
			parts[i] = fmt.Sprintf("%s×%d", e.Text, e.Count)
		}
		fmt.Fprintf(stdout, "  %-16s %s\n", row.label, strings.Join(parts, "  "))
	}
}
