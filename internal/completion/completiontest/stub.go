// Package completiontest provides deterministic completion clients for tests.
package completiontest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"treatment-review/internal/conversation"
)

// Responder produces the reply for one call given the transcript sent.
type Responder func(messages []conversation.Message) (string, error)

// Stub is a completion.Client that records every call.
type Stub struct {
	mu        sync.Mutex
	responder Responder
	calls     [][]conversation.Message
}

// New returns a stub answering with respond.
func New(respond Responder) *Stub {
	return &Stub{responder: respond}
}

// Script answers the n-th call with replies[n] and fails once they run out.
func Script(replies ...string) *Stub {
	var mu sync.Mutex
	next := 0
	return New(func([]conversation.Message) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(replies) {
			return "", fmt.Errorf("completiontest: no scripted reply for call %d", next+1)
		}
		r := replies[next]
		next++
		return r, nil
	})
}

// BySchema answers each call from the queue of the schema the last user
// message asks for, as rendered by the prompt package ("named <Schema>
// conforming"). A call for a schema whose queue is empty fails.
func BySchema(replies map[string][]string) *Stub {
	var mu sync.Mutex
	queues := make(map[string][]string, len(replies))
	for k, v := range replies {
		queues[k] = append([]string(nil), v...)
	}
	return New(func(messages []conversation.Message) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		last := LastUserMessage(messages)
		for name, queue := range queues {
			if !strings.Contains(last, "named "+name+" conforming") {
				continue
			}
			if len(queue) == 0 {
				return "", fmt.Errorf("completiontest: no reply left for %s", name)
			}
			queues[name] = queue[1:]
			return queue[0], nil
		}
		return "", fmt.Errorf("completiontest: no reply registered for message %.60q", last)
	})
}

func (s *Stub) Complete(ctx context.Context, messages []conversation.Message) (string, error) {
	s.mu.Lock()
	cp := make([]conversation.Message, len(messages))
	copy(cp, messages)
	s.calls = append(s.calls, cp)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.responder(cp)
}

// Calls returns how many times Complete ran.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Call returns the transcript sent on call i (0-based).
func (s *Stub) Call(i int) []conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

// LastUserMessage returns the final user message of a transcript.
func LastUserMessage(messages []conversation.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == conversation.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
