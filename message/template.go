package message

import (
	"fmt"

	"github.com/hupe1980/agentchat/internal/util"
)

// Instantiate resolves late-bound template placeholders in Content against the
// message Context. Substitution only happens when allowTemplate is set and the
// message carries a non-empty context; otherwise content is used literally,
// even if it looks like a template. Context is dropped from the result since
// it has been consumed.
func Instantiate(m Message, allowTemplate bool) (Message, error) {
	out := m.Clone()
	if !allowTemplate || len(m.Context) == 0 || m.Content == nil {
		return out, nil
	}

	text, err := util.RenderTemplate(*m.Content, m.Context)
	if err != nil {
		return Message{}, fmt.Errorf("instantiate message template: %w", err)
	}

	out.Content = String(text)
	out.Context = nil

	return out, nil
}
