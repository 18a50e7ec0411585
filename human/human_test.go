package human

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_Prompt(t *testing.T) {
	var out bytes.Buffer
	c := NewConsoleFrom(strings.NewReader("hello\r\nexit\n"), &out)

	reply, err := c.Prompt(context.Background(), "> ")
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)

	reply, err = c.Prompt(context.Background(), "> ")
	require.NoError(t, err)
	assert.Equal(t, "exit", reply)

	reply, err = c.Prompt(context.Background(), "> ")
	require.NoError(t, err)
	assert.Equal(t, "", reply)

	assert.Equal(t, "> > > ", out.String())
}

func TestConsole_Cancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewConsoleFrom(r, nil).Prompt(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsole_ReusableAfterCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	c := NewConsoleFrom(r, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Prompt(ctx, "")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		_, _ = w.Write([]byte("answer\n"))
	}()

	reply, err := c.Prompt(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "answer", reply)
}

func TestScripted(t *testing.T) {
	s := NewScripted("a", "")

	for _, want := range []string{"a", "", ""} {
		got, err := s.Prompt(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	assert.Len(t, s.Prompts(), 3)
}

func TestFunc(t *testing.T) {
	var in Input = Func(func(_ context.Context, text string) (string, error) {
		return strings.ToUpper(text), nil
	})

	got, err := in.Prompt(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, "OK", got)
}
