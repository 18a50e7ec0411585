package agentchat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentchat/agent"
	"github.com/hupe1980/agentchat/config"
	"github.com/hupe1980/agentchat/logging"
	"github.com/hupe1980/agentchat/remote"
)

func testConfig() *config.Config {
	one := 1

	cfg := config.DefaultConfig()
	cfg.ConfigList = []config.ModelConfig{{Provider: "mock", Model: "mock-large", Tags: []string{"default"}}}
	cfg.Agents = []config.AgentConfig{
		{Name: "assistant", Model: "default", HumanInputMode: "NEVER", MaxConsecutiveAutoReply: &one},
		{Name: "user", HumanInputMode: "NEVER", DefaultAutoReply: "thanks"},
	}
	cfg.GroupChat.Agents = []string{"assistant", "user"}
	cfg.GroupChat.MaxRound = 3
	cfg.Server.Peers = []config.PeerConfig{{Name: "remote_bob", BaseURL: "http://bob.internal:8080"}}

	return cfg
}

func newTestAgentChat(t *testing.T, cfg *config.Config) *AgentChat {
	t.Helper()

	require.NoError(t, cfg.Validate())

	c, err := New(cfg, func(o *Options) {
		o.Logger = logging.NoOpLogger{}
		o.Printer = agent.NopPrinter{}
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c
}

func TestAgentChat_InitiateChat(t *testing.T) {
	c := newTestAgentChat(t, testConfig())

	res, err := c.InitiateChat(context.Background(), "user", "assistant", "hi")
	require.NoError(t, err)

	user, ok := c.Agent("user")
	require.True(t, ok)

	history := user.ChatMessages("assistant")
	require.Len(t, history, 3)
	assert.Equal(t, "Mock response to: hi", history[1].Text())
	assert.Equal(t, "thanks", history[2].Text())
	assert.Equal(t, "thanks", res.Summary)

	last, err := c.LastReply("user", "assistant")
	require.NoError(t, err)
	assert.Equal(t, "thanks", last.Text())

	_, err = c.InitiateChat(context.Background(), "ghost", "assistant", "hi")
	assert.ErrorIs(t, err, ErrUnknownAgent)

	_, err = c.InitiateChat(context.Background(), "user", "ghost", "hi")
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestAgentChat_RunGroupChat(t *testing.T) {
	c := newTestAgentChat(t, testConfig())
	require.NotNil(t, c.GroupChat())

	transcript, err := c.RunGroupChat(context.Background(), "user", "plan the release")
	require.NoError(t, err)

	assert.Equal(t, []string{"user", "assistant", "user"}, transcript.Speakers())
	assert.Equal(t, "Mock response to: plan the release", transcript[1].Message.Text())

	_, err = c.RunGroupChat(context.Background(), "ghost", "hi")
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestAgentChat_NoGroupChat(t *testing.T) {
	cfg := testConfig()
	cfg.GroupChat.Agents = nil

	c := newTestAgentChat(t, cfg)
	assert.Nil(t, c.GroupChat())

	_, err := c.RunGroupChat(context.Background(), "user", "hi")
	assert.ErrorIs(t, err, ErrNoGroupChat)
}

func TestAgentChat_Recipient(t *testing.T) {
	c := newTestAgentChat(t, testConfig())

	r, err := c.Recipient("assistant")
	require.NoError(t, err)
	assert.Equal(t, "assistant", r.Name())

	r, err = c.Recipient("chat_manager")
	require.NoError(t, err)
	assert.Equal(t, c.GroupChat(), r)

	r, err = c.Recipient("remote_bob")
	require.NoError(t, err)
	require.IsType(t, &remote.Agent{}, r)
	assert.Equal(t, "http://bob.internal:8080", r.(*remote.Agent).BaseURL())
}

func TestAgentChat_HandlerWithMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true

	c := newTestAgentChat(t, cfg)
	require.NotNil(t, c.Metrics())

	_, err := c.InitiateChat(context.Background(), "user", "assistant", "hi")
	require.NoError(t, err)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/agents")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `agentchat_llm_requests_total{agent="assistant",model="mock-large",status="success"} 1`)
	assert.Contains(t, string(body), `agentchat_http_requests_total{method="GET",path="GET /v1/agents",status="200"} 1`)
}

func TestAgentChat_HandlerWithoutMetrics(t *testing.T) {
	c := newTestAgentChat(t, testConfig())
	assert.Nil(t, c.Metrics())

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func hostedNames(t *testing.T, c *AgentChat) []string {
	t.Helper()

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/agents")
	require.NoError(t, err)
	defer resp.Body.Close()

	var cards []remote.AgentCard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cards))

	names := make([]string, 0, len(cards))
	for _, card := range cards {
		names = append(names, card.Name)
	}

	return names
}

func TestAgentChat_CodeExecutingAgentsNotHosted(t *testing.T) {
	cfg := testConfig()
	cfg.Agents[1].CodeExecution.Enabled = true

	c := newTestAgentChat(t, cfg)

	_, ok := c.Agent("user")
	require.True(t, ok)
	assert.Equal(t, []string{"assistant"}, hostedNames(t, c))

	cfg = testConfig()
	cfg.Agents[1].CodeExecution.Enabled = true
	cfg.Server.ExposeCodeExecution = true

	c = newTestAgentChat(t, cfg)
	assert.Equal(t, []string{"assistant", "chat_manager", "user"}, hostedNames(t, c))
}

func TestAgentChat_ReplyToRestrictedToPeers(t *testing.T) {
	c := newTestAgentChat(t, testConfig())

	assert.True(t, c.Server().ReplyToAllowed("http://bob.internal:8080"))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	body := `{"sender":"eve","message":{"content":"hi"},"reply_to":"http://attacker.example"}`
	resp, err := http.Post(srv.URL+"/v1/agents/assistant/receive", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
