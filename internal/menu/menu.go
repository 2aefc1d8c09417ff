// Package menu renders the interactive bootstrap menu. Navigation is a flat
// numbered list; each entry dispatches to one bootstrap action.
package menu

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Action is one selectable menu entry.
type Action struct {
	Label string
	Run   func() error
}

// Menu drives the interactive loop.
type Menu struct {
	Log     *logrus.Entry
	In      io.Reader
	Out     io.Writer
	Title   string
	Actions []Action
}

// Loop renders the menu and dispatches selections until the operator exits.
func (m *Menu) Loop() error {
	scanner := bufio.NewScanner(m.In)
	title := color.New(color.FgCyan, color.Bold)
	errc := color.New(color.FgRed)

	for {
		fmt.Fprintln(m.Out)
		title.Fprintln(m.Out, m.Title)
		for i, a := range m.Actions {
			fmt.Fprintf(m.Out, "  %d) %s\n", i+1, a.Label)
		}
		fmt.Fprintf(m.Out, "  0) Exit\n")
		fmt.Fprint(m.Out, "Select: ")

		if !scanner.Scan() {
			return scanner.Err()
		}
		choice := strings.TrimSpace(scanner.Text())
		n, err := strconv.Atoi(choice)
		if err != nil || n < 0 || n > len(m.Actions) {
			errc.Fprintf(m.Out, "Invalid selection: %s\n", choice)
			continue
		}
		if n == 0 {
			return nil
		}

		action := m.Actions[n-1]
		if err := action.Run(); err != nil {
			m.Log.WithError(err).Error(action.Label + " failed")
			errc.Fprintf(m.Out, "Error: %v\n", err)
		}
	}
}

// Confirm asks the operator a yes/no question and defaults to no.
func Confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}
