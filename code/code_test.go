package code

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCodeBlocks(t *testing.T) {
	text := "Run this:\n```python\nprint('hi')\n```\nthen\n```\necho done\n```\nand ```bash\n\n```"

	blocks := ExtractCodeBlocks(text)
	require.Len(t, blocks, 2)

	assert.Equal(t, Block{Language: "python", Code: "print('hi')"}, blocks[0])
	assert.Equal(t, Block{Language: "sh", Code: "echo done"}, blocks[1])
}

func TestExtractCodeBlocks_None(t *testing.T) {
	assert.Nil(t, ExtractCodeBlocks("no code here"))
	assert.Nil(t, ExtractCodeBlocks(""))
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestLocalExecutor_Success(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()
	e := NewLocalExecutor(func(o *LocalOptions) { o.WorkDir = dir })

	res, err := e.Execute(context.Background(), []Block{
		{Language: "sh", Code: "echo hi"},
		{Language: "shell", Code: "echo there"},
	})
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	assert.Equal(t, "hi\nthere\n", res.Output)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "script files are removed")
}

func TestLocalExecutor_StopsAtFailure(t *testing.T) {
	requireShell(t)

	e := NewLocalExecutor(func(o *LocalOptions) { o.WorkDir = t.TempDir() })

	res, err := e.Execute(context.Background(), []Block{
		{Language: "sh", Code: "echo before; exit 3"},
		{Language: "sh", Code: "echo never"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "before\n", res.Output)
}

func TestLocalExecutor_UnknownLanguage(t *testing.T) {
	e := NewLocalExecutor(func(o *LocalOptions) { o.WorkDir = t.TempDir() })

	res, err := e.Execute(context.Background(), []Block{{Language: "cobol", Code: "DISPLAY 'HI'."}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "unknown language cobol", res.Output)
}

func TestLocalExecutor_Timeout(t *testing.T) {
	requireShell(t)

	e := NewLocalExecutor(func(o *LocalOptions) {
		o.WorkDir = t.TempDir()
		o.Timeout = 100 * time.Millisecond
	})

	res, err := e.Execute(context.Background(), []Block{{Language: "sh", Code: "sleep 5"}})
	require.NoError(t, err)

	assert.Equal(t, timeoutExitCode, res.ExitCode)
	assert.True(t, strings.HasSuffix(res.Output, "Timeout"))
}

func TestLocalExecutor_FiltersCredentials(t *testing.T) {
	requireShell(t)

	t.Setenv("AGENTCHAT_TEST_API_KEY", "secret")
	t.Setenv("AGENTCHAT_TEST_VISIBLE", "visible")

	e := NewLocalExecutor(func(o *LocalOptions) { o.WorkDir = t.TempDir() })

	res, err := e.Execute(context.Background(), []Block{{
		Language: "sh",
		Code:     `echo "[$AGENTCHAT_TEST_API_KEY][$AGENTCHAT_TEST_VISIBLE]"`,
	}})
	require.NoError(t, err)
	assert.Equal(t, "[][visible]\n", res.Output)
}

func TestLocalExecutor_CreatesWorkDir(t *testing.T) {
	e := NewLocalExecutor()
	_, err := e.Execute(context.Background(), nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = os.RemoveAll(e.WorkDir()) })

	assert.NotEmpty(t, e.WorkDir())
	assert.True(t, strings.HasPrefix(filepath.Base(e.WorkDir()), "agentchat-code-"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab\n... (output truncated)", truncate("abc", 2))
	assert.Equal(t, "abc", truncate("abc", 0))
}
