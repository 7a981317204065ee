// Package containers starts throwaway backing services for integration tests.
// Run them with: go test -tags integration ./...
package containers
