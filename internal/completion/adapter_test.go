package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "treatment-review/internal/common/errors"
	"treatment-review/internal/common/logger"
	"treatment-review/internal/completion/completiontest"
	"treatment-review/internal/conversation"
)

func userMsg(s string) conversation.Message {
	return conversation.Message{Role: conversation.RoleUser, Content: s}
}

func TestAdapter_SendAppendsBothEntries(t *testing.T) {
	stub := completiontest.Script(`{"ok":true}`)
	a := NewAdapter(stub, time.Second, logger.NewTestLogger(t))
	tr := conversation.New(conversation.Message{Role: conversation.RoleSystem, Content: "sys"})

	reply, err := a.Send(context.Background(), tr, userMsg("hello"))
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, reply)

	msgs := tr.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, conversation.RoleUser, msgs[1].Role)
	assert.Equal(t, "hello", msgs[1].Content)
	assert.Equal(t, conversation.RoleAssistant, msgs[2].Role)
	assert.Equal(t, reply, msgs[2].Content)

	// The service saw the full transcript including the new message.
	sent := stub.Call(0)
	require.Len(t, sent, 2)
	assert.Equal(t, "hello", sent[1].Content)
	assert.Equal(t, 1, a.Calls())
}

func TestAdapter_SendFailureKeepsOutbound(t *testing.T) {
	stub := completiontest.New(func([]conversation.Message) (string, error) {
		return "", errors.New("connection reset")
	})
	a := NewAdapter(stub, 0, nil)
	tr := conversation.New()

	_, err := a.Send(context.Background(), tr, userMsg("hello"))
	require.Error(t, err)

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, apperrors.ErrCodeCompletionServiceFailed, svcErr.ErrorCode())
	assert.Equal(t, apperrors.ErrCodeCompletionServiceFailed, apperrors.CodeOf(err))

	require.Equal(t, 1, tr.Len())
	last, _ := tr.Last()
	assert.Equal(t, conversation.RoleUser, last.Role)
}

func TestAdapter_SendTimeout(t *testing.T) {
	slow := ClientFunc(func(ctx context.Context, _ []conversation.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	a := NewAdapter(slow, 10*time.Millisecond, nil)

	_, err := a.Send(context.Background(), conversation.New(), userMsg("hello"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, apperrors.ErrCodeCompletionTimeout, apperrors.CodeOf(err))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Client) Client {
			return ClientFunc(func(ctx context.Context, m []conversation.Message) (string, error) {
				order = append(order, name)
				return next.Complete(ctx, m)
			})
		}
	}

	c := Chain(completiontest.Script("r"), mw("outer"), mw("inner"))
	_, err := c.Complete(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}
