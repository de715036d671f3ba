package tui

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const defaultWidth = 80

// Terminal describes the output stream the CLI writes to.
type Terminal struct {
	Interactive bool
	Width       int
	Profile     termenv.Profile
}

// Detect inspects f. Non-terminal outputs get the Ascii profile so pipes and
// files receive no escape codes.
func Detect(f *os.File) Terminal {
	t := Terminal{Width: defaultWidth, Profile: termenv.Ascii}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return t
	}
	t.Interactive = true
	t.Profile = termenv.NewOutput(f).EnvColorProfile()
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		t.Width = w
	}
	return t
}
