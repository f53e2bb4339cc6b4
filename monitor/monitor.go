// Package monitor implements the client-side tracking engine: it polls the
// OS process table, tracks sessions of executables under the configured
// monitored roots and hands completed sessions that meet the minimum
// duration to the dispatcher for delivery.
package monitor

import (
	"context"
	"time"

	"golang.org/x/xerrors"

	"cdr.dev/slog"
	"github.com/coder/quartz"

	"github.com/hamuko/beelzebub/beelzebubsdk"
	"github.com/hamuko/beelzebub/config"
	"github.com/hamuko/beelzebub/monitor/procsnap"
)

const defaultTickInterval = 5 * time.Second

// ConfigSource provides the current configuration snapshot. Snapshots are
// immutable; the tracker re-reads on every tick so hot reloads take effect
// on the next tick without disrupting one in flight.
type ConfigSource interface {
	Config() *config.Client
}

// Options configures a Monitor.
type Options struct {
	Logger   slog.Logger
	Clock    quartz.Clock
	Snapshot procsnap.Snapshotter
	Configs  ConfigSource
	// Dispatch receives completed sessions that passed the minimum duration
	// filter. It must not block; delivery runs decoupled from the tick
	// cadence.
	Dispatch func(beelzebubsdk.Submission)
	// TickInterval is the polling cadence. Defaults to 5 seconds.
	TickInterval time.Duration
}

// Monitor drives the session tracking state machine. A session becomes
// active the first tick a matching process is observed and completes the
// tick its PID disappears from the snapshot.
//
// Sessions are keyed by PID, so simultaneous instances of one executable
// are tracked independently. A PID recycled by the OS within a single
// polling interval is indistinguishable from the original process and is
// treated as a continuation; this is a known limitation of polling.
type Monitor struct {
	log      slog.Logger
	clock    quartz.Clock
	snapshot procsnap.Snapshotter
	configs  ConfigSource
	dispatch func(beelzebubsdk.Submission)
	interval time.Duration

	// sessions is only touched from the tick loop.
	sessions map[int32]*session
}

type session struct {
	executable string
	name       string
	start      time.Time
}

func New(opts Options) (*Monitor, error) {
	if opts.Snapshot == nil {
		return nil, xerrors.New("snapshotter is required")
	}
	if opts.Configs == nil {
		return nil, xerrors.New("config source is required")
	}
	if opts.Dispatch == nil {
		return nil, xerrors.New("dispatch func is required")
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	return &Monitor{
		log:      opts.Logger.Named("monitor"),
		clock:    opts.Clock,
		snapshot: opts.Snapshot,
		configs:  opts.Configs,
		dispatch: opts.Dispatch,
		interval: opts.TickInterval,
		sessions: make(map[int32]*session),
	}, nil
}

// Run polls until ctx is canceled. On shutdown all still-active sessions
// are discarded without emitting events; a partial duration is never
// reported.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info(ctx, "starting process monitor", slog.F("interval", m.interval))

	tkr := m.clock.TickerFunc(ctx, m.interval, func() error {
		m.tick(ctx)
		return nil
	}, "monitor")
	err := tkr.Wait()

	if len(m.sessions) > 0 {
		m.log.Info(ctx, "discarding active sessions at shutdown", slog.F("count", len(m.sessions)))
		m.sessions = make(map[int32]*session)
	}
	if err != nil && !xerrors.Is(err, context.Canceled) {
		return xerrors.Errorf("monitor loop: %w", err)
	}
	return nil
}

func (m *Monitor) tick(ctx context.Context) {
	cfg := m.configs.Config()
	procs, err := m.snapshot.Snapshot(ctx)
	if err != nil {
		// Skip the tick. Active sessions stay active; completing them off a
		// failed snapshot would fabricate session ends.
		m.log.Warn(ctx, "could not snapshot processes", slog.Error(err))
		return
	}

	seen := make(map[int32]struct{}, len(procs))
	for _, proc := range procs {
		seen[proc.PID] = struct{}{}
		if _, ok := m.sessions[proc.PID]; ok {
			continue
		}
		if proc.Path == "" {
			continue
		}
		if !Matches(proc.Path, cfg.Monitor) {
			continue
		}
		sess := &session{
			executable: proc.Path,
			name:       DisplayName(proc.Path, cfg.Monitor),
			start:      m.clock.Now("monitor"),
		}
		m.sessions[proc.PID] = sess
		m.log.Info(ctx, "session started",
			slog.F("pid", proc.PID),
			slog.F("executable", sess.executable),
			slog.F("name", sess.name),
		)
	}

	for pid, sess := range m.sessions {
		if _, ok := seen[pid]; ok {
			continue
		}
		delete(m.sessions, pid)
		m.complete(ctx, pid, sess, cfg)
	}
}

func (m *Monitor) complete(ctx context.Context, pid int32, sess *session, cfg *config.Client) {
	duration := m.clock.Since(sess.start, "monitor")
	m.log.Info(ctx, "session ended",
		slog.F("pid", pid),
		slog.F("executable", sess.executable),
		slog.F("duration", duration),
	)

	// The minimum is read from the configuration at completion time, not
	// the configuration the session started under.
	if minimum := cfg.MinimumSessionDuration(); duration < minimum {
		m.log.Info(ctx, "session below minimum duration, skipping",
			slog.F("duration", duration),
			slog.F("minimum", minimum),
		)
		return
	}

	name := sess.name
	m.dispatch(beelzebubsdk.Submission{
		Executable: sess.executable,
		Name:       &name,
		Time:       sess.start,
		Duration:   int64(duration / time.Second),
	})
}
