package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"             _                ", "#34d399"},
	{"  __ _ _ __ | |__   ___  _ __ ", "#2dd4bf"},
	{" / _` | '__|| '_ \\ / _ \\| '__|", "#22d3ee"},
	{"| (_| | |   | |_) | (_) | |   ", "#38bdf8"},
	{" \\__,_|_|   |_.__/ \\___/|_|   ", "#60a5fa"},
}

// PrintBanner writes the arbor banner, colored for the given profile.
func PrintBanner(w io.Writer, p termenv.Profile) {
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
