// Package human provides the human-input collaborator consulted by the
// termination stage. An empty reply is meaningful: it means no input was
// given and the agent may fall back to its auto reply.
package human

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Input solicits a reply from a human.
type Input interface {
	Prompt(ctx context.Context, text string) (string, error)
}

// Func adapts a plain function to Input.
type Func func(ctx context.Context, text string) (string, error)

// Prompt implements Input.
func (f Func) Prompt(ctx context.Context, text string) (string, error) { return f(ctx, text) }

// Console reads one line per prompt from an io.Reader (stdin by default).
// A single reader goroutine, started on the first prompt, owns the reader so
// a cancelled prompt never leaves a second read in flight. A line typed
// after a cancelled prompt goes to the next prompt.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	reader *bufio.Reader
	start  sync.Once
	lines  chan lineResult
}

// NewConsole creates a console input bound to stdin and stdout.
func NewConsole() *Console {
	return NewConsoleFrom(os.Stdin, os.Stdout)
}

// NewConsoleFrom creates a console input reading from r and echoing prompts to w.
func NewConsoleFrom(r io.Reader, w io.Writer) *Console {
	return &Console{out: w, reader: bufio.NewReader(r), lines: make(chan lineResult)}
}

type lineResult struct {
	line string
	err  error
}

// readLoop delivers lines until the first read error, then closes lines.
func (c *Console) readLoop() {
	defer close(c.lines)

	for {
		line, err := c.reader.ReadString('\n')
		c.lines <- lineResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

// Prompt prints text and waits for a line. The trailing newline is removed.
// io.EOF is reported as an empty reply.
func (c *Console) Prompt(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if c.out != nil {
		fmt.Fprint(c.out, text)
	}

	c.start.Do(func() { go c.readLoop() })

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-c.lines:
		if !ok {
			return "", nil
		}
		if res.err != nil && res.err != io.EOF {
			return "", fmt.Errorf("read human input: %w", res.err)
		}
		return strings.TrimRight(res.line, "\r\n"), nil
	}
}

// Scripted replays a fixed list of replies, then answers "" forever.
// Every prompt it was asked is recorded.
type Scripted struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

// NewScripted creates a scripted input.
func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

// Prompt implements Input.
func (s *Scripted) Prompt(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompts = append(s.prompts, text)

	if len(s.replies) == 0 {
		return "", nil
	}

	reply := s.replies[0]
	s.replies = s.replies[1:]

	return reply, nil
}

// Prompts returns the prompts seen so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}
