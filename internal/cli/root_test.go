package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ragctx/internal/domain"
)

const testConfig = `tokens:
  encoding: words
embedding:
  provider: mock
  dimension: 32
completion:
  provider: mock
  max_tokens: 100
assemble:
  budget: 500
  overhead: 50
`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func indexedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ragctx.yaml"), []byte(testConfig), 0644))
	post := `{"url": "https://blog.example.com/champ", "title": "Champ", "content": "Champ is a white dog who likes long walks."}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "champ.json"), []byte(post), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tea.md"), []byte("Green tea is brewed at eighty degrees."), 0644))

	out, err := execute(t, "", "--dir", dir, "index")
	require.NoError(t, err)
	require.Contains(t, out, "Files indexed:  2")
	return dir
}

func TestCLI_IndexAndAsk(t *testing.T) {
	dir := indexedDir(t)

	out, err := execute(t, "", "--dir", dir, "ask", "--json", "What", "color", "is", "Champ?")
	require.NoError(t, err)

	var answer domain.Answer
	require.NoError(t, json.Unmarshal([]byte(out), &answer))
	assert.Equal(t, "What color is Champ?", answer.Query)
	assert.True(t, strings.HasPrefix(answer.Text, "echo: "))
	require.NotEmpty(t, answer.Prompt.Passages)
	assert.Equal(t, "https://blog.example.com/champ", answer.Prompt.Passages[0].SourceID)
}

func TestCLI_ReindexInvalidatesAnswerCache(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	conf := testConfig + "cache:\n  enabled: true\n  backend: redis\n  redis_url: redis://" + mr.Addr() + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ragctx.yaml"), []byte(conf), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tea.md"), []byte("Green tea is brewed at eighty degrees."), 0644))

	cachedKeys := func() []string {
		var keys []string
		for _, k := range mr.Keys() {
			if strings.HasPrefix(k, "answercache:") {
				keys = append(keys, k)
			}
		}
		return keys
	}

	_, err := execute(t, "", "--dir", dir, "index")
	require.NoError(t, err)
	_, err = execute(t, "", "--dir", dir, "ask", "How hot is green tea?")
	require.NoError(t, err)
	require.Len(t, cachedKeys(), 1)

	_, err = execute(t, "", "--dir", dir, "index")
	require.NoError(t, err)
	assert.Empty(t, cachedKeys())
}

func TestCLI_Assemble(t *testing.T) {
	dir := indexedDir(t)

	out, err := execute(t, "", "--dir", dir, "assemble", "--json", "How hot is green tea?")
	require.NoError(t, err)

	var prompt domain.AssembledPrompt
	require.NoError(t, json.Unmarshal([]byte(out), &prompt))
	assert.Equal(t, 500, prompt.Budget)
	assert.Equal(t, 2, prompt.Considered)
	assert.Equal(t, 2, prompt.Included)
	assert.Contains(t, prompt.Prompt, "Question: How hot is green tea?")
}

func TestCLI_SearchWithoutIndex(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "", "--dir", dir, "search", "anything")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCLI_Chat(t *testing.T) {
	dir := indexedDir(t)

	out, err := execute(t, "Who is Champ?\n/reset\n/exit\n", "--dir", dir, "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "echo: ")
	assert.Contains(t, out, "https://blog.example.com/champ")
	assert.Contains(t, out, "conversation cleared")
}

func TestCLI_TokensCount(t *testing.T) {
	out, err := execute(t, "", "--dir", t.TempDir(), "tokens", "count", "-e", "words", "one two three")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestCLI_TokensMessages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.json")
	msgs := `[{"role": "system", "content": "be brief"}, {"role": "user", "content": "hi", "name": "ann"}]`
	require.NoError(t, os.WriteFile(path, []byte(msgs), 0644))

	out, err := execute(t, "", "--dir", dir, "tokens", "messages", "-e", "words", path)
	require.NoError(t, err)
	// (3+1+2) + (3+1+1+1+1) + 3 with the default overheads
	assert.Equal(t, "16\n", out)
}

func TestCLI_Latency(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ragctx.yaml"), []byte(testConfig), 0644))

	out, err := execute(t, "", "--dir", dir, "latency", "-n", "6", "-c", "2", "--json")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "mock", report["model"])
	assert.Equal(t, float64(6), report["requests"])
	assert.Equal(t, float64(0), report["failures"])
}
