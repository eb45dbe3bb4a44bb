package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// isInteractive reports whether stdin is attached to a terminal.
// Prompts are skipped entirely in non-interactive runs.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// promptLine prints a prompt and reads one trimmed line from stdin.
func promptLine(prompt string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
