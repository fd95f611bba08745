package backend

import (
	"context"
	"sync"
)

// MockBackend is a mock completion backend for testing.
type MockBackend struct {
	mu          sync.Mutex
	name        string
	response    string
	err         error
	callCount   int
	lastRequest *Request

	// GenerateFunc can be overridden for custom behavior.
	GenerateFunc func(ctx context.Context, req Request) (*Response, error)
}

var _ Backend = (*MockBackend)(nil)

// NewMockBackend creates a new mock backend.
func NewMockBackend(name string) *MockBackend {
	return &MockBackend{name: name}
}

// Name implements the Backend interface.
func (b *MockBackend) Name() string {
	return b.name
}

// SetResponse sets the response content.
func (b *MockBackend) SetResponse(content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.response = content
}

// SetError sets an error to return.
func (b *MockBackend) SetError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

// CallCount returns the number of Generate calls made.
func (b *MockBackend) CallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.callCount
}

// LastRequest returns the last request, or nil if none was made.
func (b *MockBackend) LastRequest() *Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRequest
}

// Generate implements the Backend interface.
func (b *MockBackend) Generate(ctx context.Context, req Request) (*Response, error) {
	b.mu.Lock()
	b.callCount++
	b.lastRequest = &req
	fn := b.GenerateFunc
	err := b.err
	response := b.response
	name := b.name
	b.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &Response{
		Content:    response,
		Model:      name + "/" + req.Model,
		StopReason: "stop",
	}, nil
}
