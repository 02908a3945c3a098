// Package completion talks to the chat completion service.
package completion

import (
	"context"

	"treatment-review/internal/conversation"
)

// Client is the raw completion service: the full transcript in, the reply
// text out.
type Client interface {
	Complete(ctx context.Context, messages []conversation.Message) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, messages []conversation.Message) (string, error)

func (f ClientFunc) Complete(ctx context.Context, messages []conversation.Message) (string, error) {
	return f(ctx, messages)
}

// Middleware decorates a Client.
type Middleware func(Client) Client

// Chain applies middlewares so the first one is outermost.
func Chain(c Client, mws ...Middleware) Client {
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}
