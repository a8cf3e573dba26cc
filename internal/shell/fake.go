package shell

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeResult is a scripted response for FakeRunner.
type FakeResult struct {
	Out string
	Err error
}

// FakeRunner is a scripted Runner for tests. Responses are keyed by the
// space-joined argv prefix; the longest matching prefix wins.
type FakeRunner struct {
	mu        sync.Mutex
	responses map[string]FakeResult
	calls     [][]string
	// Handler, when set, is consulted before the scripted responses.
	Handler func(name string, args []string) (out string, handled bool, err error)
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{responses: make(map[string]FakeResult)}
}

// On scripts the result for any command whose argv starts with prefix.
func (f *FakeRunner) On(prefix string, out string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[prefix] = FakeResult{Out: out, Err: err}
}

// Run records the call and returns the scripted result. Unscripted commands fail.
func (f *FakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	argv := append([]string{name}, args...)
	f.mu.Lock()
	f.calls = append(f.calls, argv)
	handler := f.Handler
	f.mu.Unlock()

	if handler != nil {
		if out, ok, err := handler(name, args); ok {
			return []byte(out), err
		}
	}

	joined := strings.Join(argv, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	best := ""
	found := false
	for prefix := range f.responses {
		if strings.HasPrefix(joined, prefix) && len(prefix) >= len(best) {
			best = prefix
			found = true
		}
	}
	if !found {
		return nil, &CommandError{Name: name, Args: args, ExitCode: 1, Err: fmt.Errorf("unscripted command")}
	}
	res := f.responses[best]
	return []byte(res.Out), res.Err
}

// Calls returns a copy of every argv seen so far.
func (f *FakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = append([]string(nil), c...)
	}
	return out
}
