package main

// General API documentation for swaggo. Run `swag init -g cmd/llmgate/docs.go -o docs` to regenerate.
//
// @title           llmgate API
// @version         1.0
// @description     Streaming chat gateway in front of a local Ollama model server.
//
// @contact.name   llmgate maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
