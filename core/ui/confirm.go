package ui

import (
	"bufio"
	"io"
	"strings"

	"bonita/internal/errors"
)

// PromptConfirmer asks yes/no questions on a line-oriented stream. An empty
// answer, or end of input, counts as yes. Anything other than y/n is asked
// again.
type PromptConfirmer struct {
	in  *bufio.Reader
	out *Writer
}

// NewPromptConfirmer reads answers from in and writes questions to out
func NewPromptConfirmer(in io.Reader, out *Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out}
}

// Confirm prints question followed by "[Y/n]" and waits for an answer
func (c *PromptConfirmer) Confirm(question string) (bool, error) {
	for {
		c.out.Print("%s [Y/n] ", question)

		line, err := c.in.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, errors.Wrap(errors.TypeInput, "read answer", err)
		}
		eof := err == io.EOF

		switch answer := strings.ToLower(strings.TrimSpace(line)); answer {
		case "", "y", "yes":
			if eof {
				c.out.Println("")
			}
			return true, nil
		case "n", "no":
			return false, nil
		default:
			if eof {
				c.out.Println("")
				return false, errors.Newf(errors.TypeInput, "unexpected answer %q", answer)
			}
			c.out.Println("Please enter 'Y' or 'n'.")
		}
	}
}

// StaticConfirmer answers every question the same way. Used for --yes and
// non-interactive runs.
type StaticConfirmer bool

// Confirm returns the fixed answer
func (s StaticConfirmer) Confirm(string) (bool, error) {
	return bool(s), nil
}

// AssumeYes confirms everything
const AssumeYes = StaticConfirmer(true)
