package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the ASCII art banner for Rewind to w.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	// Using a subtle gradient-like color scheme (Indigo/Violet)
	lines := []struct {
		text  string
		color string
	}{
		{"  ____                _           _ ", "#818cf8"},
		{" |  _ \\ _____      _(_)_ __   __| |", "#a78bfa"},
		{" | |_) / _ \\ \\ /\\ / / | '_ \\ / _` |", "#c084fc"},
		{" |  _ <  __/\\ V  V /| | | | | (_| |", "#e879f9"},
		{" |_| \\_\\___| \\_/\\_/ |_|_| |_|\\__,_|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}
