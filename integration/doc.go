//go:build integration

// Package integration provides integration tests for the era library.
//
// These tests require Docker and serve a generated era1 mirror from an nginx
// container with autoindex enabled, using testcontainers.
// Run with: go test -tags=integration ./integration/...
package integration
