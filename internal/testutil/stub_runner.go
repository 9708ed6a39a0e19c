package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/RevCBH/bbrun/internal/container"
)

// StubRunner is a container.Runner that answers from canned responses.
type StubRunner struct {
	mu       sync.Mutex
	stubs    map[string][]stubResponse
	defaults map[string]stubResponse
	calls    []string
	runs     []container.Process

	// OnRun, when set, handles every Run call.
	OnRun func(p container.Process) error
}

type stubResponse struct {
	out string
	err error
}

func NewStubRunner() *StubRunner {
	return &StubRunner{
		stubs:    make(map[string][]stubResponse),
		defaults: make(map[string]stubResponse),
	}
}

// Stub queues a response for the command line "name args...".
func (s *StubRunner) Stub(cmdline string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs[cmdline] = append(s.stubs[cmdline], stubResponse{out: out, err: err})
}

// StubDefault sets the response used once the queue for cmdline is drained.
func (s *StubRunner) StubDefault(cmdline string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[cmdline] = stubResponse{out: out, err: err}
}

func (s *StubRunner) CombinedOutput(ctx context.Context, name string, args ...string) (string, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	s.mu.Lock()
	s.calls = append(s.calls, key)
	queue := s.stubs[key]
	if len(queue) == 0 {
		if resp, ok := s.defaults[key]; ok {
			s.mu.Unlock()
			return resp.out, resp.err
		}
		s.mu.Unlock()
		return "", fmt.Errorf("unexpected call: %s", key)
	}
	resp := queue[0]
	s.stubs[key] = queue[1:]
	s.mu.Unlock()
	return resp.out, resp.err
}

func (s *StubRunner) Run(ctx context.Context, p container.Process) error {
	s.mu.Lock()
	s.calls = append(s.calls, strings.Join(append([]string{p.Name}, p.Args...), " "))
	s.runs = append(s.runs, p)
	onRun := s.OnRun
	s.mu.Unlock()
	if onRun != nil {
		return onRun(p)
	}
	return nil
}

// CallsFor counts calls matching the command line "name args...".
func (s *StubRunner) CallsFor(cmdline string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, call := range s.calls {
		if call == cmdline {
			count++
		}
	}
	return count
}

// Runs returns every process passed to Run, in order.
func (s *StubRunner) Runs() []container.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]container.Process, len(s.runs))
	copy(out, s.runs)
	return out
}

var _ container.Runner = (*StubRunner)(nil)
