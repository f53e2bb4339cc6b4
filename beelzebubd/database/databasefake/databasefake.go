// Package databasefake replicates database functionality in memory to
// enable quick testing of the ingestion path without PostgreSQL.
package databasefake

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/hamuko/beelzebub/beelzebubd/database"
)

// New returns an in-memory fake of the database.
func New() database.Store {
	return &fakeQuerier{
		processes: make([]database.Process, 0),
		events:    make([]database.Event, 0),
	}
}

// fakeQuerier replicates database functionality to enable quick testing.
type fakeQuerier struct {
	mutex sync.RWMutex

	processes []database.Process
	events    []database.Event

	nextProcessID int32
	nextEventID   int32

	// insertEventErr makes InsertEvent fail, for exercising the
	// all-or-nothing transaction behavior of the submit path.
	insertEventErr error
}

// InTx doesn't rollback data properly for in-memory yet.
func (q *fakeQuerier) InTx(fn func(database.Store) error) error {
	return fn(q)
}

func (q *fakeQuerier) Ping(_ context.Context) (time.Duration, error) {
	return 0, nil
}

func (q *fakeQuerier) UpsertProcess(_ context.Context, arg database.UpsertProcessParams) (database.Process, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, process := range q.processes {
		if identityEqual(process, arg.Executable, arg.Name) {
			return process, nil
		}
	}
	q.nextProcessID++
	process := database.Process{
		ID:         q.nextProcessID,
		Executable: arg.Executable,
		Name:       arg.Name,
		Export:     true,
	}
	q.processes = append(q.processes, process)
	return process, nil
}

func (q *fakeQuerier) GetProcessByIdentity(_ context.Context, arg database.GetProcessByIdentityParams) (database.Process, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, process := range q.processes {
		if identityEqual(process, arg.Executable, arg.Name) {
			return process, nil
		}
	}
	return database.Process{}, sql.ErrNoRows
}

func (q *fakeQuerier) ListProcesses(_ context.Context) ([]database.Process, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	processes := make([]database.Process, len(q.processes))
	copy(processes, q.processes)
	return processes, nil
}

func (q *fakeQuerier) UpdateProcessExport(_ context.Context, arg database.UpdateProcessExportParams) (database.Process, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, process := range q.processes {
		if process.ID == arg.ID {
			q.processes[i].Export = arg.Export
			return q.processes[i], nil
		}
	}
	return database.Process{}, sql.ErrNoRows
}

func (q *fakeQuerier) InsertEvent(_ context.Context, arg database.InsertEventParams) (database.Event, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.insertEventErr != nil {
		return database.Event{}, q.insertEventErr
	}
	found := false
	for _, process := range q.processes {
		if process.ID == arg.ProcessID {
			found = true
			break
		}
	}
	if !found {
		return database.Event{}, xerrors.Errorf("process %d does not exist", arg.ProcessID)
	}
	q.nextEventID++
	event := database.Event{
		ID:              q.nextEventID,
		Time:            arg.Time,
		ProcessID:       arg.ProcessID,
		DurationSeconds: arg.DurationSeconds,
	}
	q.events = append(q.events, event)
	return event, nil
}

func (q *fakeQuerier) ListEventsByProcessID(_ context.Context, processID int32) ([]database.Event, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	events := make([]database.Event, 0)
	for _, event := range q.events {
		if event.ProcessID == processID {
			events = append(events, event)
		}
	}
	return events, nil
}

// identityEqual mirrors the NULLS NOT DISTINCT unique constraint: two null
// names compare equal.
func identityEqual(process database.Process, executable string, name sql.NullString) bool {
	if process.Executable != executable {
		return false
	}
	if process.Name.Valid != name.Valid {
		return false
	}
	return !name.Valid || process.Name.String == name.String
}

// SetInsertEventError configures the fake to fail event inserts with err.
// Passing nil restores normal behavior.
func SetInsertEventError(store database.Store, err error) {
	fake, ok := store.(*fakeQuerier)
	if !ok {
		panic("store is not a databasefake")
	}
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	fake.insertEventErr = err
}
