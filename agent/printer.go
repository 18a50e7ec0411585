package agent

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/hupe1980/agentchat/message"
)

// Printer renders the messages an agent receives and the notices its
// termination stage emits.
type Printer interface {
	PrintMessage(sender, recipient string, m message.Message)
	PrintNotice(notice string)
}

// NopPrinter discards everything.
type NopPrinter struct{}

// PrintMessage implements Printer.
func (NopPrinter) PrintMessage(string, string, message.Message) {}

// PrintNotice implements Printer.
func (NopPrinter) PrintNotice(string) {}

// ConsolePrinter writes colored transcripts to a terminal.
type ConsolePrinter struct {
	mu      sync.Mutex
	out     io.Writer
	name    *color.Color
	call    *color.Color
	warning *color.Color
}

// NewConsolePrinter creates a printer writing to w (stdout when nil).
func NewConsolePrinter(w io.Writer) *ConsolePrinter {
	if w == nil {
		w = os.Stdout
	}
	return &ConsolePrinter{
		out:     w,
		name:    color.New(color.FgYellow),
		call:    color.New(color.FgGreen),
		warning: color.New(color.FgRed),
	}
}

// PrintMessage renders one received message. Tool responses are rendered
// one by one; function and tool results use the named response banner.
func (p *ConsolePrinter) PrintMessage(sender, recipient string, m message.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.printMessage(sender, recipient, m)
	fmt.Fprintf(p.out, "\n%s\n", strings.Repeat("-", 80))
}

func (p *ConsolePrinter) printMessage(sender, recipient string, m message.Message) {
	p.name.Fprint(p.out, sender)
	fmt.Fprintf(p.out, " (to %s):\n\n", recipient)

	if len(m.ToolResponses) > 0 {
		for _, tr := range m.ToolResponses {
			p.printMessage(sender, recipient, tr.Message())
		}
		if m.Role == message.RoleTool {
			return
		}
	}

	switch m.Role {
	case message.RoleFunction, message.RoleTool:
		id := m.Name
		if m.Role == message.RoleTool {
			id = m.ToolCallID
		}
		if id == "" {
			id = "No id found"
		}
		p.banner(fmt.Sprintf("***** Response from calling %s (%s) *****", m.Role, id), m.Text())
		return
	}

	if m.Content != nil {
		fmt.Fprintln(p.out, *m.Content)
	}

	if fc := m.FunctionCall; fc != nil {
		p.banner(fmt.Sprintf("***** Suggested function call: %s *****", fc.Name), "Arguments: \n"+fc.Arguments)
	}

	for _, tc := range m.ToolCalls {
		p.banner(fmt.Sprintf("***** Suggested tool call (%s): %s *****", tc.ID, tc.Function.Name), "Arguments: \n"+tc.Function.Arguments)
	}
}

func (p *ConsolePrinter) banner(title, body string) {
	p.call.Fprintln(p.out, title)
	fmt.Fprintln(p.out, body)
	p.call.Fprintln(p.out, strings.Repeat("*", len(title)))
}

// PrintNotice renders a termination stage notice in red.
func (p *ConsolePrinter) PrintNotice(notice string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.warning.Fprintf(p.out, "\n>>>>>>>> %s\n", notice)
}
