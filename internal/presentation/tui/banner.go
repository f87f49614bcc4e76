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
	{`   ___ ___  _ ____   _____   __ _ _ __ __ _ _ __ | |__  `, "#818cf8"},
	{`  / __/ _ \| '_ \ \ / / _ \ / _' | '__/ _' | '_ \| '_ \ `, "#a78bfa"},
	{` | (_| (_) | | | \ V / (_) | (_| | | | (_| | |_) | | | |`, "#c084fc"},
	{`  \___\___/|_| |_|\_/ \___/ \__, |_|  \__,_| .__/|_| |_|`, "#e879f9"},
	{`                            |___/          |_|          `, "#f472b6"},
}

// PrintBanner writes the ASCII art banner, colored when w is a color terminal.
func PrintBanner(w io.Writer) {
	p := termenv.NewOutput(w).Profile
	fmt.Fprintln(w)
	for _, line := range bannerLines {
		if p == termenv.Ascii {
			fmt.Fprintln(w, line.text)
			continue
		}
		fmt.Fprintln(w, termenv.String(line.text).Foreground(p.Color(line.color)))
	}
	fmt.Fprintln(w)
}
