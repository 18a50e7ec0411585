// Package metrics exports Prometheus metrics for agents, tools, group chats
// and the remote agent server.
//
// A Collector owns its own registry. Hook it into agents through the flow
// callback manager and the tool observer:
//
//	collector := metrics.NewCollector("agentchat", logger)
//	callbacks := flow.NewCallbackManager()
//	collector.RegisterCallbacks(callbacks)
//
//	assistant := agent.NewConversableAgent("assistant", func(o *agent.Options) {
//	    o.Callbacks = callbacks
//	    o.ToolObserver = collector.ObserveTool
//	})
//
//	http.Handle("/metrics", collector.Handler())
package metrics
