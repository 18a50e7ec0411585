package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/logging"
	"github.com/hupe1980/agentchat/message"
)

// ErrNotSupported is returned for operations a proxy cannot perform on
// behalf of the remote agent.
var ErrNotSupported = errors.New("not supported by remote agent proxy")

// AgentOptions configures an Agent proxy.
type AgentOptions struct {
	Description string
	// ReplyTo is the base URL of the server hosting the local agents that
	// talk to the proxy. Replies are delivered there.
	ReplyTo string
	Client  *http.Client
	Logger  logging.Logger
}

// Agent is a local stand-in for an agent hosted by another Server. Receive
// delivers the message over HTTP and returns once the remote side accepted
// it; the remote reply arrives later at ReplyTo.
type Agent struct {
	name    string
	baseURL string
	opts    AgentOptions
}

// NewAgent creates a proxy for the agent name hosted at baseURL.
func NewAgent(name, baseURL string, optFns ...func(o *AgentOptions)) *Agent {
	opts := AgentOptions{
		Client: &http.Client{Timeout: 30 * time.Second},
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Agent{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
	}
}

// Name returns the remote agent's name.
func (a *Agent) Name() string { return a.name }

// Description returns the configured description.
func (a *Agent) Description() string { return a.opts.Description }

// BaseURL returns the address of the remote server.
func (a *Agent) BaseURL() string { return a.baseURL }

// Send is not supported: a proxy only receives on behalf of its agent.
func (a *Agent) Send(context.Context, any, core.Agent, *bool) error {
	return fmt.Errorf("send from %s: %w", a.name, ErrNotSupported)
}

// Receive delivers msg from sender to the remote agent.
func (a *Agent) Receive(ctx context.Context, msg any, sender core.Agent, requestReply *bool) error {
	if a.opts.ReplyTo == "" {
		return fmt.Errorf("deliver to %s: no reply address configured", a.name)
	}

	m, err := message.Normalize(msg)
	if err != nil {
		return err
	}

	body, err := json.Marshal(ReceiveRequest{
		Sender:       sender.Name(),
		Message:      m,
		RequestReply: requestReply,
		ReplyTo:      a.opts.ReplyTo,
		ChatID:       core.ChatIDFrom(ctx),
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v1/agents/%s/receive", a.baseURL, url.PathEscape(a.name))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", a.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var e ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil || e.Message == "" {
			e.Message = strings.TrimSpace(string(raw))
		}
		return &DeliveryError{Agent: a.name, StatusCode: resp.StatusCode, Code: e.Code, Message: e.Message}
	}

	a.opts.Logger.Debug("remote.message.delivered", "peer", a.name, "sender", sender.Name(), "url", endpoint)

	return nil
}

// GenerateReply is not supported: replies are produced remotely.
func (a *Agent) GenerateReply(context.Context, core.Agent) (core.Outcome, error) {
	return core.Outcome{}, fmt.Errorf("generate reply for %s: %w", a.name, ErrNotSupported)
}

// Reset is a no-op; the remote agent owns its state.
func (a *Agent) Reset() {}

// DeliveryError is returned when the remote server rejects a delivery.
type DeliveryError struct {
	Agent      string
	StatusCode int
	Code       string
	Message    string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: status %d: %s: %s", e.Agent, e.StatusCode, e.Code, e.Message)
}

// ListAgents fetches the agent cards of the server at baseURL.
func ListAgents(ctx context.Context, client *http.Client, baseURL string) ([]AgentCard, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/v1/agents", nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list agents: status %d", resp.StatusCode)
	}

	var cards []AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&cards); err != nil {
		return nil, err
	}

	return cards, nil
}
