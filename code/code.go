// Package code extracts fenced code blocks from messages and executes them.
//
// Agents configured with an Executor answer messages containing code blocks
// with the execution result instead of calling their model.
package code

import (
	"context"
	"regexp"
	"strings"
)

// Block is a fenced code block found in a message.
type Block struct {
	Language string
	Code     string
}

// Result is the outcome of executing a batch of blocks. ExitCode is the
// exit code of the last block that ran; execution stops at the first
// failing block.
type Result struct {
	ExitCode int
	Output   string
}

// Succeeded reports whether every executed block exited with code 0.
func (r Result) Succeeded() bool { return r.ExitCode == 0 }

// Executor runs code blocks.
type Executor interface {
	// Execute runs blocks in order. A non-nil error reports an executor
	// failure; a failing block is reported through Result.ExitCode.
	Execute(ctx context.Context, blocks []Block) (Result, error)
}

var blockPattern = regexp.MustCompile("(?s)```[ \\t]*([\\w+-]*)[^\\n]*\\n(.*?)```")

// ExtractCodeBlocks returns the fenced code blocks of text in order of
// appearance. Blocks without a language tag are treated as shell scripts.
func ExtractCodeBlocks(text string) []Block {
	matches := blockPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	blocks := make([]Block, 0, len(matches))
	for _, m := range matches {
		src := strings.TrimRight(m[2], "\n")
		if strings.TrimSpace(src) == "" {
			continue
		}

		lang := strings.ToLower(m[1])
		if lang == "" {
			lang = "sh"
		}

		blocks = append(blocks, Block{Language: lang, Code: src})
	}

	return blocks
}
