package testsupport

import (
	"context"
	"strings"
	"sync"
)

// Call is one recorded executor invocation.
type Call struct {
	Binary string
	Args   []string
}

// FakeExecutor records invocations instead of running binaries.
type FakeExecutor struct {
	Err error

	mu    sync.Mutex
	calls []Call
}

func (f *FakeExecutor) Run(_ context.Context, binary string, args []string, onOutput func(string)) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Binary: binary, Args: append([]string(nil), args...)})
	f.mu.Unlock()
	if onOutput != nil {
		onOutput(binary + " " + strings.Join(args, " "))
	}
	return f.Err
}

// Calls returns the recorded invocations.
func (f *FakeExecutor) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}
