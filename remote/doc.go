// Package remote lets agents in different processes talk to each other over
// HTTP.
//
// A Server exposes local agents at POST /v1/agents/{name}/receive. A
// request names the sending agent and the base URL at which the sender's
// own server listens. The server answers 202 Accepted immediately and runs
// the receive path in the background; when the local agent replies, the
// reply is delivered through an Agent proxy, which POSTs it to the sender's
// server. A conversation between two processes is therefore a chain of
// one-way deliveries.
package remote
