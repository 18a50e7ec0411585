package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/agentchat/core"
	"github.com/hupe1980/agentchat/logging"
	"github.com/hupe1980/agentchat/message"
)

// ReceiveRequest is the body of POST /v1/agents/{name}/receive.
type ReceiveRequest struct {
	Sender  string          `json:"sender"`
	Message message.Message `json:"message"`
	// RequestReply nil lets the receiving agent decide.
	RequestReply *bool `json:"request_reply,omitempty"`
	// ReplyTo is the base URL of the server hosting Sender.
	ReplyTo string `json:"reply_to"`
	ChatID  string `json:"chat_id,omitempty"`
}

// ReceiveResponse acknowledges an accepted delivery.
type ReceiveResponse struct {
	ChatID string `json:"chat_id,omitempty"`
}

// AgentCard describes a hosted agent.
type AgentCard struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every non 2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// BaseURL is where this server is reachable; replies of remote agents
	// are addressed to it.
	BaseURL string
	Client  *http.Client
	// RateLimit bounds accepted deliveries per second (0 = unlimited).
	RateLimit rate.Limit
	Burst     int
	// ReceiveTimeout bounds each background receive (0 = none).
	ReceiveTimeout time.Duration
	// OnError observes failures of background receives.
	OnError func(agent string, err error)
	Logger  logging.Logger
	// AllowedReplyTo lists the base URLs a delivery may name as reply_to.
	// Deliveries naming any other address are rejected with 403.
	AllowedReplyTo []string
}

// Server hosts local agents.
type Server struct {
	opts    ServerOptions
	mux     *http.ServeMux
	limiter *rate.Limiter

	mu      sync.RWMutex
	agents  map[string]core.Agent
	peers   map[string]*Agent
	replyTo map[string]struct{}

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server hosting agents.
func NewServer(agents []core.Agent, optFns ...func(o *ServerOptions)) (*Server, error) {
	opts := ServerOptions{
		Client: &http.Client{Timeout: 30 * time.Second},
		Burst:  1,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		opts:    opts,
		mux:     http.NewServeMux(),
		agents:  make(map[string]core.Agent, len(agents)),
		peers:   make(map[string]*Agent),
		replyTo: make(map[string]struct{}, len(opts.AllowedReplyTo)),
		baseCtx: ctx,
		cancel:  cancel,
	}

	for _, u := range opts.AllowedReplyTo {
		s.replyTo[normalizeURL(u)] = struct{}{}
	}

	if opts.RateLimit > 0 {
		s.limiter = rate.NewLimiter(opts.RateLimit, max(opts.Burst, 1))
	}

	for _, a := range agents {
		if err := s.Register(a); err != nil {
			cancel()
			return nil, err
		}
	}

	s.mux.HandleFunc("POST /v1/agents/{name}/receive", s.handleReceive)
	s.mux.HandleFunc("GET /v1/agents", s.handleList)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	return s, nil
}

// Register hosts a, rejecting duplicate names.
func (s *Server) Register(a core.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[a.Name()]; ok {
		return fmt.Errorf("agent %q already registered", a.Name())
	}
	s.agents[a.Name()] = a

	return nil
}

// SetBaseURL sets the address replies are addressed to. Useful when the
// listener is only known after the server was created.
func (s *Server) SetBaseURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.BaseURL = url
}

// Peer returns the proxy for the agent name hosted at baseURL. Local agents
// send to it like to any other agent.
func (s *Server) Peer(name, baseURL string) *Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := baseURL + "|" + name
	if p, ok := s.peers[key]; ok {
		return p
	}

	p := s.newPeer(name, baseURL)
	s.peers[key] = p
	s.replyTo[normalizeURL(baseURL)] = struct{}{}

	return p
}

func (s *Server) newPeer(name, baseURL string) *Agent {
	return NewAgent(name, baseURL, func(o *AgentOptions) {
		o.Client = s.opts.Client
		o.ReplyTo = s.opts.BaseURL
		o.Logger = s.opts.Logger
	})
}

// AllowReplyTo accepts deliveries asking for replies at baseURL. Peer
// allows its baseURL implicitly.
func (s *Server) AllowReplyTo(baseURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyTo[normalizeURL(baseURL)] = struct{}{}
}

// ReplyToAllowed reports whether deliveries may ask for replies at baseURL.
func (s *Server) ReplyToAllowed(baseURL string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.replyTo[normalizeURL(baseURL)]
	return ok
}

func normalizeURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Wait blocks until all background receives finished.
func (s *Server) Wait() { s.wg.Wait() }

// Close cancels running receives and waits for them.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many deliveries")
		return
	}

	name := r.PathValue("name")

	s.mu.RLock()
	local, ok := s.agents[name]
	s.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "unknown_agent", fmt.Sprintf("agent %q not found", name))
		return
	}

	var req ReceiveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if req.Sender == "" || req.ReplyTo == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "sender and reply_to are required")
		return
	}

	if err := message.Validate(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_message", err.Error())
		return
	}

	if !s.ReplyToAllowed(req.ReplyTo) {
		s.opts.Logger.Warn("remote.receive.rejected", "agent", name, "peer", req.Sender, "reply_to", req.ReplyTo)
		writeError(w, http.StatusForbidden, "reply_to_not_allowed", "reply_to is not a configured peer")
		return
	}

	// Proxies for inbound senders are not cached; agents key their logs by
	// name, not by proxy identity.
	s.mu.RLock()
	peer := s.newPeer(req.Sender, req.ReplyTo)
	s.mu.RUnlock()

	s.opts.Logger.Debug("remote.receive.accepted", "agent", name, "peer", req.Sender, "chat_id", req.ChatID)

	s.wg.Add(1)
	go s.receive(local, peer, req)

	writeJSON(w, http.StatusAccepted, ReceiveResponse{ChatID: req.ChatID})
}

func (s *Server) receive(local core.Agent, peer *Agent, req ReceiveRequest) {
	defer s.wg.Done()

	ctx := s.baseCtx
	if req.ChatID != "" {
		ctx = core.WithChatID(ctx, req.ChatID)
	}

	if s.opts.ReceiveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ReceiveTimeout)
		defer cancel()
	}

	err := local.Receive(ctx, req.Message, peer, req.RequestReply)
	if err == nil {
		return
	}

	if errors.Is(err, context.Canceled) {
		s.opts.Logger.Debug("remote.receive.cancelled", "agent", local.Name(), "peer", peer.Name())
	} else {
		s.opts.Logger.Error("remote.receive.failed", "agent", local.Name(), "peer", peer.Name(), "error", err.Error())
	}

	if s.opts.OnError != nil {
		s.opts.OnError(local.Name(), err)
	}
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	cards := make([]AgentCard, 0, len(s.agents))
	for _, a := range s.agents {
		cards = append(cards, AgentCard{Name: a.Name(), Description: a.Description()})
	}
	s.mu.RUnlock()

	slices.SortFunc(cards, func(a, b AgentCard) int { return strings.Compare(a.Name, b.Name) })

	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: msg})
}
