package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bakkerme/selfpost-copier/internal/reddit"
)

// Prompter asks the operator to confirm each submission, one line per
// answer. Only "y" (any case) approves.
type Prompter struct {
	lines  chan lineResult
	out    io.Writer
	target string
}

type lineResult struct {
	line string
	err  error
}

// NewPrompter reads answers from in and writes prompts to out. Lines are
// read on a background goroutine so an interrupt can abandon a prompt.
func NewPrompter(in io.Reader, out io.Writer, target string) *Prompter {
	p := &Prompter{lines: make(chan lineResult), out: out, target: target}
	go p.read(in)
	return p
}

func (p *Prompter) read(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		p.lines <- lineResult{line: scanner.Text()}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	for {
		p.lines <- lineResult{err: err}
	}
}

func (p *Prompter) Approve(ctx context.Context, sub reddit.Submission) (bool, error) {
	fmt.Fprintf(p.out, "\n%s\n(from %s)\n\n%s\n\nSubmit to %s? [y/N] ", sub.Title, sub.Subreddit, sub.Body, p.target)
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case res := <-p.lines:
		if res.err != nil {
			return false, fmt.Errorf("read approval: %w", res.err)
		}
		return strings.EqualFold(strings.TrimSpace(res.line), "y"), nil
	}
}
