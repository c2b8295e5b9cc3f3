package reasoning

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Dummy is an offline backend. It echoes a short excerpt of the prompt so
// the whole pipeline can run without credentials.
type Dummy struct{}

func (Dummy) Reason(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	persona, _, _ := strings.Cut(p.System, ".")
	excerpt := p.User
	if r := []rune(excerpt); len(r) > 400 {
		excerpt = string(r[:400]) + "..."
	}
	return fmt.Sprintf("Offline draft (%s).\nNo reasoning backend is configured; prompt excerpt follows.\n\n%s",
		strings.TrimPrefix(persona, "You are a "), excerpt), nil
}

// Response is one scripted reply.
type Response struct {
	Text string
	Err  error
}

// Stub is a scripted Reasoner. Replies are matched by a marker that must
// appear in the prompt's System text; the last reply for a marker repeats.
// Unmatched prompts get "ok". Safe for concurrent use.
type Stub struct {
	mu      sync.Mutex
	scripts map[string][]Response
	markers []string
	calls   map[string]int
	prompts map[string][]Prompt
	total   int
	block   map[string]bool
}

// NewStub returns an empty Stub.
func NewStub() *Stub {
	return &Stub{
		scripts: make(map[string][]Response),
		calls:   make(map[string]int),
		prompts: make(map[string][]Prompt),
		block:   make(map[string]bool),
	}
}

// On scripts replies for prompts whose System text contains marker.
func (s *Stub) On(marker string, replies ...Response) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scripts[marker]; !ok {
		s.markers = append(s.markers, marker)
	}
	s.scripts[marker] = replies
	return s
}

// Hang makes prompts matching marker block until their context is done.
func (s *Stub) Hang(marker string) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scripts[marker]; !ok {
		s.markers = append(s.markers, marker)
		s.scripts[marker] = nil
	}
	s.block[marker] = true
	return s
}

// Calls returns how many prompts matched marker.
func (s *Stub) Calls(marker string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[marker]
}

// Prompts returns the prompts that matched marker, in call order.
func (s *Stub) Prompts(marker string) []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Prompt(nil), s.prompts[marker]...)
}

// Total returns the number of Reason calls.
func (s *Stub) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *Stub) Reason(ctx context.Context, p Prompt) (string, error) {
	s.mu.Lock()
	s.total++
	var (
		reply = Response{Text: "ok"}
		hang  bool
	)
	for _, m := range s.markers {
		if !strings.Contains(p.System, m) {
			continue
		}
		n := s.calls[m]
		s.calls[m]++
		s.prompts[m] = append(s.prompts[m], p)
		hang = s.block[m]
		if replies := s.scripts[m]; len(replies) > 0 {
			reply = replies[min(n, len(replies)-1)]
		}
		break
	}
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return reply.Text, reply.Err
}
