// Command assistant-server runs the AI coding-assistant orchestration
// server: its HTTP/SSE/WebSocket API, the multi-stage agent workflow
// engine behind it, and the durable session/checkpoint stores it persists
// through.
package main

import "github.com/codeforge/assistant/cmd/assistant-server/cmd"

func main() {
	cmd.Execute()
}
