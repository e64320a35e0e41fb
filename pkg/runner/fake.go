package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Fake is a Runner for tests. It answers commands from a table keyed by the
// space-joined argv and records every call.
type Fake struct {
	mu      sync.Mutex
	outputs map[string][]byte
	errors  map[string]error
	calls   [][]string
}

// NewFake creates an empty fake runner.
func NewFake() *Fake {
	return &Fake{
		outputs: make(map[string][]byte),
		errors:  make(map[string]error),
	}
}

// On registers the output of a command line.
func (f *Fake) On(output string, argv ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[strings.Join(argv, " ")] = []byte(output)
	return f
}

// Fail makes a command line fail with err.
func (f *Fake) Fail(err error, argv ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[strings.Join(argv, " ")] = err
	return f
}

// Run looks up the command line. Unknown commands fail.
func (f *Fake) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	argv := append([]string{name}, args...)
	key := strings.Join(argv, " ")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, argv)
	if err, ok := f.errors[key]; ok {
		return nil, err
	}
	if out, ok := f.outputs[key]; ok {
		return out, nil
	}
	return nil, fmt.Errorf("unexpected command: %s", key)
}

// Calls returns the recorded command lines in order.
func (f *Fake) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	copy(out, f.calls)
	return out
}
