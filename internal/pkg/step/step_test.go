package step

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	res, err := Run(context.Background(), "olia", time.Second, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.Nil(t, err)
	assert.Equal(t, "ok", res)
}

func TestRun_Timeout(t *testing.T) {
	res, err := Run(context.Background(), "olia", time.Millisecond*20, func(ctx context.Context) (string, error) {
		select {
		case <-time.After(time.Second * 5):
			return "partial", nil
		case <-ctx.Done():
			return "partial", ctx.Err()
		}
	})
	require.NotNil(t, err)
	var tErr *TimeoutError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, "olia", tErr.Step)
	assert.Equal(t, "", res)
}

func TestRun_TimeoutIgnoringCtx(t *testing.T) {
	res, err := Run(context.Background(), "olia", time.Millisecond*20, func(ctx context.Context) (string, error) {
		time.Sleep(time.Millisecond * 100)
		return "late", nil
	})
	require.NotNil(t, err)
	var tErr *TimeoutError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, "olia", tErr.Step)
	assert.Equal(t, "", res, "no late value on timeout")
}

func TestRun_Fail(t *testing.T) {
	res, err := Run(context.Background(), "olia", time.Second, func(ctx context.Context) (int, error) {
		return 10, fmt.Errorf("olia err")
	})
	require.NotNil(t, err)
	var sErr *Error
	require.True(t, errors.As(err, &sErr))
	assert.Equal(t, "olia", sErr.Step)
	assert.True(t, errors.Is(err, sErr))
	assert.Equal(t, 0, res, "no partial value on failure")
}

func TestRun_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	_, err := Run(context.Background(), "olia", time.Second, func(ctx context.Context) (int, error) {
		return 0, cause
	})
	assert.True(t, errors.Is(err, cause))
}

func TestTimeoutError_Error(t *testing.T) {
	assert.Equal(t, "step 'diarize' timed out after 2m0s", (&TimeoutError{Step: "diarize", After: 2 * time.Minute}).Error())
}
