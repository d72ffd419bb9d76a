//go:build tools

package tools

// mockery is used as an installed binary, so nothing is imported here.
// Run mockery from the repository root to regenerate pkg/transport/mocks
// (see .mockery.yaml).
