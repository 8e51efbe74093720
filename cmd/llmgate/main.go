// llmgate is a streaming chat gateway in front of a local Ollama model server.
//
// Usage:
//
//	# Serve on :8080, launching `ollama serve` on first use when needed
//	llmgate serve
//
//	# Use an existing model server and a config file
//	llmgate serve --config llmgate.yaml --upstream http://10.0.0.5:11434 --no-spawn
//
//	# List models through a running gateway
//	llmgate models --gateway http://localhost:8080
package main

func main() {
	Execute()
}
