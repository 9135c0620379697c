package cli

import (
	"os"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/term"
)

// startSpinner shows a progress spinner on stderr while a long-running
// step executes. When stderr is not a terminal (hooks run under
// flat-manager) the returned stop function is a no-op and nothing is
// drawn.
func startSpinner(message string) (stop func()) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return func() {}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Writer = os.Stderr
	s.Suffix = " " + message
	s.Start()
	return s.Stop
}
