package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treatment-review/internal/common/config"
	"treatment-review/internal/common/errors"
)

var fastRetry = &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestExecuteWithRetry(t *testing.T) {
	tests := []struct {
		name          string
		failures      []error
		expectedCalls int
		expectedCode  errors.ErrorCode
	}{
		{
			name:          "succeeds first time",
			expectedCalls: 1,
		},
		{
			name:          "transient then success",
			failures:      []error{stderrors.New("rpc error: code = Unavailable")},
			expectedCalls: 2,
		},
		{
			name: "transient until exhausted",
			failures: []error{
				stderrors.New("connection refused"),
				stderrors.New("connection refused"),
				stderrors.New("connection refused"),
			},
			expectedCalls: 3,
			expectedCode:  errors.ErrCodeBrokerUnavailable,
		},
		{
			name:          "permanent error stops immediately",
			failures:      []error{stderrors.New("rpc error: code = NotFound desc = job not found")},
			expectedCalls: 1,
			expectedCode:  errors.ErrCodeBrokerRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			result, err := executeWithRetry(context.Background(), fastRetry, func(context.Context) (interface{}, error) {
				calls++
				if calls <= len(tt.failures) {
					return nil, tt.failures[calls-1]
				}
				return "ok", nil
			}, "complete job")

			assert.Equal(t, tt.expectedCalls, calls)
			if tt.expectedCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.expectedCode, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", result)
		})
	}
}

func TestExecuteWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := &RetryConfig{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}

	_, err := executeWithRetry(ctx, slow, func(context.Context) (interface{}, error) {
		cancel()
		return nil, stderrors.New("deadline exceeded")
	}, "topology")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClientConfigFrom(t *testing.T) {
	cfg := ClientConfigFrom(config.CamundaConfig{BrokerAddress: "zeebe:26500", RequestTimeout: 5000})
	assert.Equal(t, "zeebe:26500", cfg.GatewayAddress)
	assert.True(t, cfg.UsePlaintextConnection)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)

	cfg = ClientConfigFrom(config.CamundaConfig{})
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}
