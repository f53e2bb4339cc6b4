package monitor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdr.dev/slog/sloggers/slogtest"

	"github.com/hamuko/beelzebub/beelzebubsdk"
	"github.com/hamuko/beelzebub/config"
	"github.com/hamuko/beelzebub/monitor"
	"github.com/hamuko/beelzebub/testutil"
)

func testSubmission(executable string, duration int64) beelzebubsdk.Submission {
	name := "foo"
	return beelzebubsdk.Submission{
		Executable: executable,
		Name:       &name,
		Time:       time.Date(2024, 3, 8, 21, 14, 0, 0, time.UTC),
		Duration:   duration,
	}
}

func TestDispatcher(t *testing.T) {
	t.Parallel()

	t.Run("Delivers", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(testutil.Context(t, testutil.WaitShort))
		defer cancel()

		received := make(chan []beelzebubsdk.Submission, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get(beelzebubsdk.SecretHeader))
			var batch []beelzebubsdk.Submission
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
			received <- batch
			rw.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(rw).Encode(beelzebubsdk.SubmissionResponse{Status: beelzebubsdk.SubmissionStatusOK})
		}))
		t.Cleanup(srv.Close)

		cfgs := newConfigSource(config.Client{URL: srv.URL})
		dispatcher := monitor.NewDispatcher(testutil.Logger(t), cfgs)
		testutil.GoContext(t, func(ctx context.Context) {
			_ = dispatcher.Run(ctx)
		})

		dispatcher.Enqueue(testSubmission(`C:\Games\foo.exe`, 90))

		batch := testutil.RequireReceive(ctx, t, received)
		require.Len(t, batch, 1)
		require.Equal(t, `C:\Games\foo.exe`, batch[0].Executable)
		require.EqualValues(t, 90, batch[0].Duration)
		require.Eventually(t, func() bool {
			return dispatcher.Len() == 0
		}, testutil.WaitShort, testutil.IntervalFast)
	})

	t.Run("AttachesSecret", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(testutil.Context(t, testutil.WaitShort))
		defer cancel()

		secrets := make(chan string, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			secrets <- r.Header.Get(beelzebubsdk.SecretHeader)
			rw.WriteHeader(http.StatusCreated)
		}))
		t.Cleanup(srv.Close)

		cfgs := newConfigSource(config.Client{URL: srv.URL, Secret: "hunter2"})
		dispatcher := monitor.NewDispatcher(testutil.Logger(t), cfgs)
		testutil.GoContext(t, func(ctx context.Context) {
			_ = dispatcher.Run(ctx)
		})

		dispatcher.Enqueue(testSubmission(`C:\Games\foo.exe`, 90))
		require.Equal(t, "hunter2", testutil.RequireReceive(ctx, t, secrets))
	})

	t.Run("RetriesTransientFailure", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(testutil.Context(t, testutil.WaitShort))
		defer cancel()

		var calls atomic.Int64
		delivered := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) <= 2 {
				rw.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(rw).Encode(beelzebubsdk.SubmissionResponse{Status: beelzebubsdk.SubmissionStatusDatabaseError})
				return
			}
			rw.WriteHeader(http.StatusCreated)
			close(delivered)
		}))
		t.Cleanup(srv.Close)

		cfgs := newConfigSource(config.Client{URL: srv.URL})
		dispatcher := monitor.NewDispatcher(testutil.Logger(t), cfgs)
		testutil.GoContext(t, func(ctx context.Context) {
			_ = dispatcher.Run(ctx)
		})

		dispatcher.Enqueue(testSubmission(`C:\Games\foo.exe`, 90))

		testutil.RequireReceive(ctx, t, delivered)
		require.EqualValues(t, 3, calls.Load())
		require.Eventually(t, func() bool {
			return dispatcher.Len() == 0
		}, testutil.WaitShort, testutil.IntervalFast)
	})

	t.Run("DropsOnAuthFailure", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			rw.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(rw).Encode(beelzebubsdk.SubmissionResponse{Status: beelzebubsdk.SubmissionStatusUnauthenticated})
		}))
		t.Cleanup(srv.Close)

		// The dispatcher logs the dropped events at error level.
		logger := slogtest.Make(t, &slogtest.Options{IgnoreErrors: true})
		cfgs := newConfigSource(config.Client{URL: srv.URL, Secret: "wrong"})
		dispatcher := monitor.NewDispatcher(logger, cfgs)
		testutil.GoContext(t, func(ctx context.Context) {
			_ = dispatcher.Run(ctx)
		})

		dispatcher.Enqueue(testSubmission(`C:\Games\foo.exe`, 90))

		require.Eventually(t, func() bool {
			return dispatcher.Len() == 0
		}, testutil.WaitShort, testutil.IntervalFast)
		// Authentication failures are not retryable; exactly one request
		// must have been made.
		require.EqualValues(t, 1, calls.Load())
	})

	t.Run("StopsOnCancel", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(testutil.Context(t, testutil.WaitShort))

		cfgs := newConfigSource(config.Client{URL: "http://127.0.0.1:0"})
		dispatcher := monitor.NewDispatcher(testutil.Logger(t), cfgs)
		done := make(chan error, 1)
		go func() {
			done <- dispatcher.Run(ctx)
		}()
		cancel()
		require.NoError(t, <-done)
	})
}
