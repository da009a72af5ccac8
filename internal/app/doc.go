// Package app contains the core application logic. It wires the configured
// model backends, report history and bundle pipeline into an App, and
// exposes the pipeline either as a one-shot run or behind an HTTP server,
// decoupled from any specific entrypoint like a CLI.
package app
