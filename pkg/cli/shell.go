// pkg/cli/shell.go
package cli

import (
	"bufio"
	"io"
	"strings"
)

// Shell represents an interactive command shell for a stratum store.
// It provides readline-like functionality including continuation-line
// parsing and command history.
type Shell struct {
	// reader reads input lines
	reader *bufio.Reader

	// output writes normal output
	output io.Writer

	// errOutput writes error messages
	errOutput io.Writer

	// prompt is the primary prompt shown for new commands
	prompt string

	// continuePrompt is shown for multi-line command continuation
	continuePrompt string

	// history stores command history for recall
	history []string

	// historyIndex tracks current position when navigating history
	historyIndex int

	// maxHistory is the maximum number of history entries to keep
	maxHistory int
}

// NewShell creates a new interactive shell with the given input/output streams.
// If errOutput is nil, errors are written to output.
func NewShell(input io.Reader, output, errOutput io.Writer) *Shell {
	var reader *bufio.Reader
	if input != nil {
		reader = bufio.NewReader(input)
	}

	if errOutput == nil {
		errOutput = output
	}

	return &Shell{
		reader:         reader,
		output:         output,
		errOutput:      errOutput,
		prompt:         "stratum> ",
		continuePrompt: "    ...> ",
		history:        make([]string, 0),
		historyIndex:   0,
		maxHistory:     1000,
	}
}

// SetPrompt changes the primary prompt string.
func (s *Shell) SetPrompt(prompt string) {
	s.prompt = prompt
}

// SetContinuePrompt changes the continuation prompt string.
func (s *Shell) SetContinuePrompt(prompt string) {
	s.continuePrompt = prompt
}

// ReadLine reads a single line from input, stripping trailing whitespace.
// It returns the line and whether EOF was reached.
func (s *Shell) ReadLine() (string, bool) {
	if s.reader == nil {
		return "", true
	}

	line, err := s.reader.ReadString('\n')
	if err != nil {
		// EOF or error
		line = strings.TrimRight(line, " \t\r\n")
		return line, true
	}

	// Strip trailing whitespace including newline
	line = strings.TrimRight(line, " \t\r\n")
	return line, false
}

// ReadCommand reads a complete command, which may span multiple lines via
// a trailing backslash or an unterminated quoted argument. Returns the
// command and whether EOF was reached.
func (s *Shell) ReadCommand() (string, bool) {
	var lines []string
	isFirst := true

	for {
		// Show appropriate prompt
		if s.output != nil {
			if isFirst {
				io.WriteString(s.output, s.prompt)
			} else {
				io.WriteString(s.output, s.continuePrompt)
			}
		}
		isFirst = false

		line, eof := s.ReadLine()

		// Handle empty input
		if eof && line == "" && len(lines) == 0 {
			return "", true
		}

		lines = append(lines, line)
		combined := strings.Join(lines, "\n")

		// Check if command is complete
		if s.IsComplete(combined) {
			cmd := joinContinuations(combined)
			trimmed := strings.TrimSpace(cmd)
			if trimmed != "" {
				s.AddHistory(trimmed)
			}
			return cmd, false
		}

		// If we hit EOF with an incomplete command, return what we have
		if eof {
			return joinContinuations(combined), true
		}
	}
}

// IsComplete determines if a command is complete. A command is complete
// when its last line does not end with a continuation backslash and all
// quoted arguments are terminated.
func (s *Shell) IsComplete(cmd string) bool {
	if cmd == "" {
		return false
	}

	inQuote := false
	escaped := false
	for _, r := range cmd {
		if escaped {
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if r == '"' {
			inQuote = !inQuote
		}
	}
	if inQuote {
		return false
	}

	// A trailing backslash (left pending in escaped) continues the
	// command onto the next line.
	return !escaped
}

// joinContinuations folds backslash-newline pairs out of a multi-line
// command, producing the single logical line the REPL parses.
func joinContinuations(cmd string) string {
	return strings.ReplaceAll(cmd, "\\\n", "")
}

// AddHistory adds a command to the command history.
func (s *Shell) AddHistory(cmd string) {
	// Don't add duplicates of the last entry
	if len(s.history) > 0 && s.history[len(s.history)-1] == cmd {
		return
	}

	s.history = append(s.history, cmd)

	// Trim history if it exceeds max size
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}

	// Reset history index to end
	s.historyIndex = len(s.history)
}

// History returns a copy of the command history.
func (s *Shell) History() []string {
	result := make([]string, len(s.history))
	copy(result, s.history)
	return result
}

// ClearHistory removes all entries from the command history.
func (s *Shell) ClearHistory() {
	s.history = make([]string, 0)
	s.historyIndex = 0
}

// HistoryPrev returns the previous history entry, or empty string if at the beginning.
func (s *Shell) HistoryPrev() string {
	if s.historyIndex > 0 {
		s.historyIndex--
		return s.history[s.historyIndex]
	}
	return ""
}

// HistoryNext returns the next history entry, or empty string if at the end.
func (s *Shell) HistoryNext() string {
	if s.historyIndex < len(s.history)-1 {
		s.historyIndex++
		return s.history[s.historyIndex]
	}
	// Reset to end
	s.historyIndex = len(s.history)
	return ""
}
