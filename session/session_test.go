package session

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/fundgraph/llm"
)

func TestNewIsSeeded(t *testing.T) {
	h := New()
	msgs := h.Messages()
	require.Len(t, msgs, SeedLen)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "ex:round_date")
	assert.Contains(t, msgs[1].Content, "semicolon")
	for _, m := range msgs[1:] {
		assert.Equal(t, llm.RoleUser, m.Role)
	}
	assert.NotEmpty(t, h.ID)
}

func TestHistoryAppendOnly(t *testing.T) {
	h := NewHistory()
	h.Append(llm.User("q1"), llm.Assistant("a1"))
	snap := h.Messages()
	snap[0].Content = "mutated"

	h.Append(llm.User("q2"))
	msgs := h.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "q1", msgs[0].Content)
	assert.Equal(t, "q2", msgs[2].Content)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "q2", last.Content)
}

func TestHistoryWithDoesNotAppend(t *testing.T) {
	h := NewHistory(llm.System("s"))
	msgs := h.With(llm.User("probe"))
	assert.Len(t, msgs, 2)
	assert.Equal(t, 1, h.Len())
}

func TestHistoryConcurrentAppend(t *testing.T) {
	h := NewHistory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Append(llm.User("x"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, h.Len())
}

func TestManager(t *testing.T) {
	m := NewManager()
	h := m.Create()
	got, ok := m.Get(h.ID)
	require.True(t, ok)
	assert.Same(t, h, got)

	assert.Same(t, h, m.GetOrCreate(h.ID))
	other := m.GetOrCreate("unknown")
	assert.NotEqual(t, h.ID, other.ID)
	assert.Equal(t, 2, m.Len())

	m.Delete(h.ID)
	_, ok = m.Get(h.ID)
	assert.False(t, ok)
}

func TestPromptsUseCanonicalProperties(t *testing.T) {
	for _, p := range []string{SystemPrompt, semicolonFeedback, practicesFeedback, parameterFeedback} {
		assert.False(t, strings.Contains(p, "ex:date "), "prompt should not teach ex:date")
		assert.False(t, strings.Contains(p, "ex:locatedIn "), "prompt should not teach ex:locatedIn")
	}
}
