// Package procsnap captures point-in-time snapshots of the operating
// system's process table. The monitor reconciles consecutive snapshots
// rather than subscribing to OS process notifications; polling is less
// precise but portable and easy to reason about.
package procsnap

import (
	"context"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/xerrors"
)

// Process is one running process observed in a snapshot.
type Process struct {
	// PID is the OS-assigned process identifier. It is transient and may
	// be recycled by the OS after the process exits.
	PID int32
	// Path is the absolute path of the process executable. Empty when the
	// OS does not report one.
	Path string
}

// Snapshotter captures the set of currently running processes.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]Process, error)
}

// OS returns a Snapshotter backed by the live process table.
func OS() Snapshotter {
	return osSnapshotter{}
}

type osSnapshotter struct{}

func (osSnapshotter) Snapshot(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, xerrors.Errorf("list processes: %w", err)
	}
	out := make([]Process, 0, len(procs))
	for _, proc := range procs {
		exe, err := proc.ExeWithContext(ctx)
		if err != nil {
			// Routine for system processes we lack permissions for and for
			// processes that exited mid-snapshot. Without a path they can
			// never match a monitored root anyway.
			out = append(out, Process{PID: proc.Pid})
			continue
		}
		out = append(out, Process{PID: proc.Pid, Path: exe})
	}
	return out, nil
}

// Fake is a Snapshotter for tests, fed with a scripted process table.
type Fake struct {
	mu    sync.Mutex
	procs []Process
	err   error
}

func NewFake(procs ...Process) *Fake {
	return &Fake{procs: procs}
}

// Set replaces the process table returned by subsequent snapshots.
func (f *Fake) Set(procs ...Process) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.procs = procs
	f.err = nil
}

// SetError makes subsequent snapshots fail with err until Set is called.
func (f *Fake) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *Fake) Snapshot(_ context.Context) ([]Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Process, len(f.procs))
	copy(out, f.procs)
	return out, nil
}
