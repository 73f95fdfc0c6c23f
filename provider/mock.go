package provider

import "context"

// MockProvider returns canned responses for tests and offline runs.
type MockProvider struct {
	// Response is returned by every Complete call when Fn is nil.
	Response string
	// Fn, when set, computes the response from the inputs.
	Fn func(system, user string) (string, error)
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Complete(_ context.Context, system, user string) (string, error) {
	if m.Fn != nil {
		return m.Fn(system, user)
	}
	return m.Response, nil
}
