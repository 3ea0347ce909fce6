package resolver

import (
	"context"
	"fmt"
	"sync"
)

// mockFetcher is a mock implementation of fetch.Fetcher for testing
type mockFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	requested []string
}

func newMockFetcher(responses map[string]string) *mockFetcher {
	return &mockFetcher{responses: responses}
}

func (m *mockFetcher) Get(_ context.Context, uri string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requested = append(m.requested, uri)
	if m.err != nil {
		return "", m.err
	}
	body, ok := m.responses[uri]
	if !ok {
		return "", fmt.Errorf("mock: no response for %s", uri)
	}
	return body, nil
}

func (m *mockFetcher) lastRequest() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requested) == 0 {
		return ""
	}
	return m.requested[len(m.requested)-1]
}
