package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/agentchat/groupchat"
	"github.com/hupe1980/agentchat/logging"
)

// Collector records agentchat metrics into a private registry.
type Collector struct {
	registry *prometheus.Registry

	// LLM
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec
	llmCacheHits       *prometheus.CounterVec

	// Tools
	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	// Agents
	repliesTotal      *prometheus.CounterVec
	terminationsTotal *prometheus.CounterVec

	// Group chat
	speakerSelections *prometheus.CounterVec

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger logging.Logger
}

// NewCollector creates a collector whose metric names carry namespace.
// The registry also holds the Go runtime and process collectors.
func NewCollector(namespace string, logger logging.Logger) *Collector {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger,
	}

	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"agent", "model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"agent", "model", "type"}, // type: prompt, completion
	)

	c.llmCost = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_total",
			Help:      "Total LLM cost in USD",
		},
		[]string{"agent", "model"},
	)

	c.llmCacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cache_hits_total",
			Help:      "Total number of LLM responses served from the cache",
		},
		[]string{"agent", "model"},
	)

	c.toolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool and function executions",
		},
		[]string{"tool", "status"},
	)

	c.toolCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	c.repliesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_replies_total",
			Help:      "Total number of generated replies",
		},
		[]string{"agent", "kind"}, // kind: text, calls, exit
	)

	c.terminationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_terminations_total",
			Help:      "Total number of conversations ended by the termination stage",
		},
		[]string{"agent"},
	)

	c.speakerSelections = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groupchat_speaker_selections_total",
			Help:      "Total number of group chat speaker selections",
		},
		[]string{"speaker", "policy"},
	)

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.logger.Debug("metrics.collector.created", "namespace", namespace)

	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordLLMRequest records one model call.
func (c *Collector) RecordLLMRequest(agent, model, status string, dur time.Duration) {
	c.llmRequestsTotal.WithLabelValues(agent, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(agent, model).Observe(dur.Seconds())
}

// RecordLLMUsage records token usage and cost of a completion.
func (c *Collector) RecordLLMUsage(agent, model string, promptTokens, completionTokens int, cost float64, cached bool) {
	if cached {
		c.llmCacheHits.WithLabelValues(agent, model).Inc()
		return
	}

	c.llmTokensUsed.WithLabelValues(agent, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(agent, model, "completion").Add(float64(completionTokens))

	if cost > 0 {
		c.llmCost.WithLabelValues(agent, model).Add(cost)
	}
}

// ObserveTool records a tool execution. Its signature matches tool.Observer.
func (c *Collector) ObserveTool(name string, dur time.Duration, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}

	c.toolCallsTotal.WithLabelValues(name, status).Inc()
	c.toolCallDuration.WithLabelValues(name).Observe(dur.Seconds())
}

// RecordReply records a generated reply of the given kind.
func (c *Collector) RecordReply(agent, kind string) {
	c.repliesTotal.WithLabelValues(agent, kind).Inc()
}

// RecordTermination records a conversation ended by agent.
func (c *Collector) RecordTermination(agent string) {
	c.terminationsTotal.WithLabelValues(agent).Inc()
}

// ObserveSpeaker records a speaker selection. Its signature matches
// groupchat.Options.OnSpeakerSelected.
func (c *Collector) ObserveSpeaker(speaker string, policy groupchat.SpeakerSelection) {
	c.speakerSelections.WithLabelValues(speaker, string(policy)).Inc()
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, dur time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(dur.Seconds())
}
