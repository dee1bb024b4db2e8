package reasoning

import (
	"context"
	"sync"
)

// MockClient is a deterministic Client for tests: it returns a canned
// proposal (or error) and records the requests it saw.
type MockClient struct {
	mu       sync.Mutex
	Proposal *Proposal
	Err      error
	Requests []*Request
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) Propose(ctx context.Context, req *Request) (*Proposal, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Proposal, nil
}

func (m *MockClient) Model() string { return "mock-reasoner" }

// CallCount reports how many proposals were requested.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
