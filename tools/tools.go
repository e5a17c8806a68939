//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are run with `go run` or installed globally via `go install` and are not
// tracked in go.mod since they are development tools, not runtime dependencies.
package tools

// Development tools:
//
// MockGen - regenerates internal/mocks from the ports in internal/core
//   Run: go generate ./internal/mocks
//   Version: go.uber.org/mock v0.6.0 (matches go.mod)
//   Docs: https://github.com/uber-go/mock
//
// Air - Live reload for the API while developing
//   Install: go install github.com/air-verse/air@v1.63.0
//   Run: SERVICES=http,worker,dispatcher,reaper DEV=true AUTH_MODE=mock air
//   Docs: https://github.com/air-verse/air
