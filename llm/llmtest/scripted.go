// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/brunobiangulo/fundgraph/llm"
)

// Reply is one scripted answer. When Err is set it is returned instead of
// the content.
type Reply struct {
	Content string
	Err     error
}

// Scripted replays replies in order and records every request it receives.
// A Respond func, when set, is consulted before the script and may claim the
// call by returning ok=true.
type Scripted struct {
	mu       sync.Mutex
	replies  []Reply
	requests []llm.ChatRequest

	Respond func(req llm.ChatRequest) (reply Reply, ok bool)
}

// New returns a provider that answers with the given contents in order.
func New(contents ...string) *Scripted {
	s := &Scripted{}
	for _, c := range contents {
		s.replies = append(s.replies, Reply{Content: c})
	}
	return s
}

// Push appends replies to the script.
func (s *Scripted) Push(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

func (s *Scripted) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	req.Messages = append([]llm.Message(nil), req.Messages...)
	s.requests = append(s.requests, req)

	var r Reply
	handled := false
	if s.Respond != nil {
		r, handled = s.Respond(req)
	}
	if !handled {
		if len(s.replies) == 0 {
			s.mu.Unlock()
			return nil, fmt.Errorf("llmtest: no scripted reply for call %d", len(s.requests))
		}
		r, s.replies = s.replies[0], s.replies[1:]
	}
	s.mu.Unlock()

	if r.Err != nil {
		return nil, r.Err
	}
	return &llm.ChatResponse{
		Content:          r.Content,
		Model:            "scripted",
		FinishReason:     "stop",
		PromptTokens:     len(req.Messages),
		CompletionTokens: 1,
		TotalTokens:      len(req.Messages) + 1,
	}, nil
}

// Calls returns how many requests were made.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of the recorded requests.
func (s *Scripted) Requests() []llm.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.ChatRequest(nil), s.requests...)
}

// LastPrompt returns the content of the final message of the most recent
// request, or "" when nothing was sent.
func (s *Scripted) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return ""
	}
	msgs := s.requests[len(s.requests)-1].Messages
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content
}
