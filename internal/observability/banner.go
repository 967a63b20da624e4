package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorNeonCyan = "\033[96m"
)

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// TermWidth returns the stdout width, or 80 when it cannot be determined.
func TermWidth() int {
	return termWidth()
}

const banner = `
    ___  ____  ____  ___     ___  ____  __  ____   __   ___  ___  _  _
   |   \| ___|| ___|| _ \   | _ \| ___|/ _|| ___| /  \ | _ \/ __|| || |
   | |) | _|  | _|  |  _/   |   /| _|  \_ \| _|  | () ||   / (__ | __ |
   |___/|____||____||_|     |_|_\|____||__/|____| \__/ |_|_\\___||_||_|

            >> PLAN . REVIEW . RESEARCH . REPORT <<
`

// PrintBanner writes the centered banner. Colors are used only on a terminal.
func PrintBanner(w io.Writer) {
	color, reset := "", ""
	if IsTerminal() {
		color, reset = colorNeonCyan, colorReset
	}

	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Fprintf(w, "%s%s%s%s\n", strings.Repeat(" ", padding), color, l, reset)
	}
}
