package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript_AppendOnly(t *testing.T) {
	tr := New(Message{Role: RoleSystem, Content: "sys"})
	tr.Append(Message{Role: RoleUser, Content: "q1"})
	tr.Append(Message{Role: RoleAssistant, Content: "a1"})

	require.Equal(t, 3, tr.Len())
	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, "a1", last.Content)
	assert.Equal(t, 1, tr.Count(RoleUser))
	assert.Equal(t, 1, tr.Count(RoleAssistant))

	snapshot := tr.Messages()
	snapshot[0].Content = "mutated"
	assert.Equal(t, "sys", tr.Messages()[0].Content)

	assert.Equal(t, []Role{RoleSystem, RoleUser, RoleAssistant}, []Role{snapshot[0].Role, snapshot[1].Role, snapshot[2].Role})
}

func TestTranscript_Empty(t *testing.T) {
	tr := New()
	_, ok := tr.Last()
	assert.False(t, ok)
	assert.Empty(t, tr.Messages())
}

func TestTranscript_Isolated(t *testing.T) {
	a := New(Message{Role: RoleSystem, Content: "sys"})
	b := New(Message{Role: RoleSystem, Content: "sys"})
	a.Append(Message{Role: RoleUser, Content: "only in a"})

	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 1, b.Len())
}
