package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/chronikcache/chronikcache/internal/domain"
)

func fastOptions() Options {
	return Options{MaxRetries: 3, RetryDelay: time.Millisecond, ExponentialBackoff: false}
}

func TestExecuteWithRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := ExecuteWithRetry(context.Background(), fastOptions(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestExecuteWithRetryExhausts(t *testing.T) {
	attempts := 0
	wantErr := errors.New("always fails")
	err := ExecuteWithRetry(context.Background(), fastOptions(), func(context.Context) error {
		attempts++
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 3, attempts) // op is attempted up to MaxRetries times total
}

func TestExecuteWithRetryPermanentStopsImmediately(t *testing.T) {
	attempts := 0
	wantErr := errors.New("permanent")
	err := ExecuteWithRetry(context.Background(), fastOptions(), func(context.Context) error {
		attempts++
		return Permanent(wantErr)
	})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 1, attempts)
}

var errNotFound = errors.New("not found")

func TestHandleDBOperationCollapsesNotFound(t *testing.T) {
	v, err := HandleDBOperation(context.Background(), fastOptions(), errNotFound, func(context.Context) (string, error) {
		return "", errNotFound
	})
	require.NoError(t, err)
	require.Equal(t, "", v)
}

func TestHandleDBOperationReturnsValue(t *testing.T) {
	v, err := HandleDBOperation(context.Background(), fastOptions(), errNotFound, func(context.Context) (string, error) {
		return "value", nil
	})
	require.NoError(t, err)
	require.Equal(t, "value", v)
}

func TestHandleWebSocketOperationLogsAndReraises(t *testing.T) {
	wantErr := errors.New("dial tcp: connection refused")
	err := HandleWebSocketOperation(context.Background(), fastOptions(), log.Root(), "addr:1", func(context.Context) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.ErrorIs(t, err, domain.ErrTransport)
}
