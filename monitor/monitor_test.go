package monitor_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coder/quartz"

	"github.com/hamuko/beelzebub/beelzebubsdk"
	"github.com/hamuko/beelzebub/config"
	"github.com/hamuko/beelzebub/monitor"
	"github.com/hamuko/beelzebub/monitor/procsnap"
	"github.com/hamuko/beelzebub/testutil"
)

// configSource publishes immutable configuration snapshots like the config
// supervisor does, without a backing file.
type configSource struct {
	ptr atomic.Pointer[config.Client]
}

func newConfigSource(cfg config.Client) *configSource {
	s := &configSource{}
	s.ptr.Store(&cfg)
	return s
}

func (s *configSource) Config() *config.Client {
	return s.ptr.Load()
}

func (s *configSource) set(cfg config.Client) {
	s.ptr.Store(&cfg)
}

type monitorTest struct {
	clock *quartz.Mock
	snap  *procsnap.Fake
	subs  chan beelzebubsdk.Submission
	start time.Time
}

// startMonitor runs a monitor with a one second tick against a fake
// process table and a mock clock. It returns once the ticker is
// registered, so the caller can advance the clock deterministically.
func startMonitor(t *testing.T, ctx context.Context, cfgs monitor.ConfigSource, snap *procsnap.Fake) *monitorTest {
	t.Helper()

	mClock := quartz.NewMock(t)
	trap := mClock.Trap().TickerFunc("monitor")
	defer trap.Close()

	subs := make(chan beelzebubsdk.Submission, 16)
	mon, err := monitor.New(monitor.Options{
		Logger:   testutil.Logger(t),
		Clock:    mClock,
		Snapshot: snap,
		Configs:  cfgs,
		Dispatch: func(sub beelzebubsdk.Submission) {
			subs <- sub
		},
		TickInterval: time.Second,
	})
	require.NoError(t, err)

	testutil.Go(t, func() {
		_ = mon.Run(ctx)
	})
	call := trap.MustWait(ctx)
	call.MustRelease(ctx)

	return &monitorTest{
		clock: mClock,
		snap:  snap,
		subs:  subs,
		start: mClock.Now(),
	}
}

func (m *monitorTest) advance(ctx context.Context, ticks int) {
	for i := 0; i < ticks; i++ {
		m.clock.Advance(time.Second).MustWait(ctx)
	}
}

func (m *monitorTest) requireNoSubmission(t *testing.T) {
	t.Helper()
	select {
	case sub := <-m.subs:
		t.Fatalf("unexpected submission: %s", sub.DisplayString())
	default:
	}
}

func TestMonitor(t *testing.T) {
	t.Parallel()

	defaultConfig := config.Client{
		MinimumDuration: 60,
		Monitor:         []string{`C:\Games`},
		URL:             "http://localhost:8080",
	}

	t.Run("ReportsSession", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(testutil.Context(t, testutil.WaitShort))
		defer cancel()

		snap := procsnap.NewFake(procsnap.Process{PID: 100, Path: `C:\Games\foo.exe`})
		mt := startMonitor(t, ctx, newConfigSource(defaultConfig), snap)

		// First tick observes the process and starts the session.
		mt.advance(ctx, 1)
		sessionStart := mt.start.Add(time.Second)

		mt.advance(ctx, 90)
		mt.requireNoSubmission(t)

		snap.Set()
		mt.advance(ctx, 1)

		sub := testutil.RequireReceive(ctx, t, mt.subs)
		require.Equal(t, `C:\Games\foo.exe`, sub.Executable)
		require.NotNil(t, sub.Name)
		require.Equal(t, "foo", *sub.Name)
		require.True(t, sub.Time.Equal(sessionStart))
		require.EqualValues(t, 91, sub.Duration)
		mt.requireNoSubmission(t)
	})

	t.Run("BelowMinimumSkipped", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(testutil.Context(t, testutil.WaitShort))
		defer cancel()

		snap := procsnap.NewFake(procsnap.Process{PID: 100, Path: `C:\Games\foo.exe`})
		mt := startMonitor(t, ctx, newConfigSource(defaultConfig), snap)

		mt.advance(ctx, 1)
		mt.advance(ctx, 29)
		snap.Set()
		mt.advance(ctx, 1)

		mt.requireNoSubmission(t)
	})

	t.Run("UnmonitoredNeverTracked", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(testutil.Context(t, testutil.WaitShort))
		defer cancel()

		snap := procsnap.NewFake(
			procsnap.Process{PID: 4, Path: `C:\Windows\System32\svchost.exe`},
			procsnap.Process{PID: 5},
		)
		mt := startMonitor(t, ctx, newConfigSource(defaultConfig), snap)

		mt.advance(ctx, 1)
		mt.advance(ctx, 120)
		snap.Set()
		mt.advance(ctx, 1)

		mt.requireNoSubmission(t)
	})

	t.Run("TwoInstancesTrackedIndependently", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(testutil.Context(t, testutil.WaitShort))
		defer cancel()

		first := procsnap.Process{PID: 101, Path: `C:\Games\foo.exe`}
		second := procsnap.Process{PID: 102, Path: `C:\Games\foo.exe`}
		snap := procsnap.NewFake(first, second)
		mt := startMonitor(t, ctx, newConfigSource(defaultConfig), snap)

		mt.advance(ctx, 1)
		mt.advance(ctx, 69)
		snap.Set(second)
		mt.advance(ctx, 1)
		mt.advance(ctx, 9)
		snap.Set()
		mt.advance(ctx, 1)

		one := testutil.RequireReceive(ctx, t, mt.subs)
		two := testutil.RequireReceive(ctx, t, mt.subs)
		require.Equal(t, `C:\Games\foo.exe`, one.Executable)
		require.Equal(t, `C:\Games\foo.exe`, two.Executable)
		assert.ElementsMatch(t, []int64{70, 80}, []int64{one.Duration, two.Duration})
	})

	t.Run("ShutdownDiscardsActiveSessions", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(testutil.Context(t, testutil.WaitShort))
		defer cancel()

		snap := procsnap.NewFake(procsnap.Process{PID: 100, Path: `C:\Games\foo.exe`})
		mt := startMonitor(t, ctx, newConfigSource(defaultConfig), snap)

		mt.advance(ctx, 1)
		mt.advance(ctx, 120)
		cancel()

		mt.requireNoSubmission(t)
	})

	t.Run("SnapshotErrorSkipsTick", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(testutil.Context(t, testutil.WaitShort))
		defer cancel()

		cfg := defaultConfig
		cfg.MinimumDuration = 0
		snap := procsnap.NewFake(procsnap.Process{PID: 100, Path: `C:\Games\foo.exe`})
		mt := startMonitor(t, ctx, newConfigSource(cfg), snap)

		mt.advance(ctx, 1)
		snap.SetError(assert.AnError)
		mt.advance(ctx, 10)
		// The session must survive failed snapshots rather than being
		// completed against an empty process list.
		mt.requireNoSubmission(t)

		snap.Set()
		mt.advance(ctx, 1)
		sub := testutil.RequireReceive(ctx, t, mt.subs)
		require.EqualValues(t, 11, sub.Duration)
	})

	t.Run("HotReloadedMinimumAppliesAtCompletion", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(testutil.Context(t, testutil.WaitShort))
		defer cancel()

		cfgs := newConfigSource(defaultConfig)
		snap := procsnap.NewFake(procsnap.Process{PID: 100, Path: `C:\Games\foo.exe`})
		mt := startMonitor(t, ctx, cfgs, snap)

		mt.advance(ctx, 1)
		mt.advance(ctx, 10)

		// Lower the minimum below the session length while it is running.
		reloaded := defaultConfig
		reloaded.MinimumDuration = 5
		cfgs.set(reloaded)

		snap.Set()
		mt.advance(ctx, 1)

		sub := testutil.RequireReceive(ctx, t, mt.subs)
		require.EqualValues(t, 12, sub.Duration)
	})
}

func TestMonitorOptions(t *testing.T) {
	t.Parallel()

	t.Run("RequiresSnapshotter", func(t *testing.T) {
		t.Parallel()
		_, err := monitor.New(monitor.Options{
			Logger:   testutil.Logger(t),
			Configs:  newConfigSource(config.Client{}),
			Dispatch: func(beelzebubsdk.Submission) {},
		})
		require.Error(t, err)
	})

	t.Run("RequiresDispatch", func(t *testing.T) {
		t.Parallel()
		_, err := monitor.New(monitor.Options{
			Logger:   testutil.Logger(t),
			Snapshot: procsnap.NewFake(),
			Configs:  newConfigSource(config.Client{}),
		})
		require.Error(t, err)
	})
}
