package secrets

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// TerminalPassphrase returns a PassphraseFunc that prompts on the terminal
// without echo. When stdin is not a terminal (scripts, tests) it falls back
// to reading one line.
func TerminalPassphrase(prompt string) PassphraseFunc {
	return func() (string, error) {
		fmt.Fprint(os.Stderr, prompt)
		if term.IsTerminal(int(os.Stdin.Fd())) {
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", err
			}
			return string(raw), nil
		}

		var line string
		if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
			return "", err
		}
		return line, nil
	}
}
