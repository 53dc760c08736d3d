package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(nil, zerolog.Nop())
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls)
}

func TestDoDoesNotRetry401(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(nil, zerolog.Nop())
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = c.Do(req)
	require.Error(t, err)
	var nonRetryable *NonRetryableError
	assert.ErrorAs(t, err, &nonRetryable)
	assert.Equal(t, int32(1), calls)
}

func TestRetryAfterDefaultsTo60sWhenUnparseable(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryAfter(""))
	assert.Equal(t, time.Duration(0), retryAfter("not-a-number"))
	assert.Equal(t, time.Duration(0), retryAfterFromBody("rate limited, try again later"))
	// The Do loop only substitutes defaultRetryAfter once both parsers
	// return 0; verified here directly since exercising it through Do
	// would require sleeping 60 real seconds.
	assert.Equal(t, 60*time.Second, defaultRetryAfter)
}

func TestRetryAfterFromBodyParsesEmbeddedSeconds(t *testing.T) {
	assert.Equal(t, 30*time.Second, retryAfterFromBody("rate limited: retry after 30s"))
	assert.Equal(t, 12*time.Second, retryAfterFromBody("please retry in: 12s"))
	assert.Equal(t, time.Duration(0), retryAfterFromBody("no timing info here"))
}

func TestDoExhaustsRetriesOn500(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(nil, zerolog.Nop())
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = c.Do(req)
	require.Error(t, err)
	var retryable *RetryableError
	assert.ErrorAs(t, err, &retryable)
	assert.Equal(t, int32(MaxAttempts), calls)
}
