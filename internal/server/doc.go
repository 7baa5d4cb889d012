// Package server is the HTTP surface the deskpilot desktop UI talks to.
//
// It is a thin chi router over the orchestrator:
//
//	POST   /chat                    send a prompt, wait for the reply
//	GET    /session                 live sessions
//	POST   /session/{key}/compact   summarize and restart a conversation
//	GET    /session/{key}/history   transcript of a conversation
//	DELETE /session/{key}/history   forget a transcript
//	GET    /attachment              pending attachment
//	POST   /attachment              stage a file or image for the next message
//	DELETE /attachment              drop the pending attachment
//	GET    /models                  models offered by the backend
//	GET    /tools                   registered tools
//	GET    /mcp                     MCP server status
//	GET    /event                   SSE stream of UI and lifecycle events
//	GET    /metrics                 Prometheus metrics
//	GET    /health                  liveness
//
// Errors are returned as {"error":{"code","message"}} with one of the
// ErrCode constants. Failures reported by the model backend map to 502
// BACKEND_ERROR.
//
// The event stream sends one "message" frame per bus event, encoded as
// {"type":"widget.render","data":{...}}, preceded by a server.connected
// frame and interleaved with heartbeat comments every 30 seconds.
// ?session=<key> limits the stream to one conversation plus global events.
package server
