package database

import (
	"context"
	"database/sql"
	"time"
)

// querier lists all database queries the server performs.
type querier interface {
	UpsertProcess(ctx context.Context, arg UpsertProcessParams) (Process, error)
	GetProcessByIdentity(ctx context.Context, arg GetProcessByIdentityParams) (Process, error)
	ListProcesses(ctx context.Context) ([]Process, error)
	UpdateProcessExport(ctx context.Context, arg UpdateProcessExportParams) (Process, error)
	InsertEvent(ctx context.Context, arg InsertEventParams) (Event, error)
	ListEventsByProcessID(ctx context.Context, processID int32) ([]Event, error)
}

var _ querier = (*sqlQuerier)(nil)

type UpsertProcessParams struct {
	Executable string         `db:"executable"`
	Name       sql.NullString `db:"name"`
}

const upsertProcess = `
INSERT INTO processes (executable, name)
VALUES ($1, $2)
ON CONFLICT ON CONSTRAINT processes_executable_name_key
DO UPDATE SET executable = EXCLUDED.executable
RETURNING id, executable, name, export
`

// UpsertProcess resolves the process identity (executable, name), creating
// the row if it does not exist yet. The insert is conflict-tolerant so
// concurrent first-sightings of the same identity resolve to one row. The
// no-op DO UPDATE exists solely to make the statement return the surviving
// row; the export flag is never touched.
func (q *sqlQuerier) UpsertProcess(ctx context.Context, arg UpsertProcessParams) (Process, error) {
	var process Process
	err := q.db.GetContext(ctx, &process, upsertProcess, arg.Executable, arg.Name)
	return process, err
}

type GetProcessByIdentityParams struct {
	Executable string         `db:"executable"`
	Name       sql.NullString `db:"name"`
}

const getProcessByIdentity = `
SELECT id, executable, name, export
FROM processes
WHERE executable = $1 AND name IS NOT DISTINCT FROM $2
`

func (q *sqlQuerier) GetProcessByIdentity(ctx context.Context, arg GetProcessByIdentityParams) (Process, error) {
	var process Process
	err := q.db.GetContext(ctx, &process, getProcessByIdentity, arg.Executable, arg.Name)
	return process, err
}

const listProcesses = `
SELECT id, executable, name, export
FROM processes
ORDER BY id
`

func (q *sqlQuerier) ListProcesses(ctx context.Context) ([]Process, error) {
	processes := []Process{}
	err := q.db.SelectContext(ctx, &processes, listProcesses)
	return processes, err
}

type UpdateProcessExportParams struct {
	ID     int32 `db:"id"`
	Export bool  `db:"export"`
}

const updateProcessExport = `
UPDATE processes
SET export = $2
WHERE id = $1
RETURNING id, executable, name, export
`

// UpdateProcessExport toggles whether a process is included in downstream
// reporting. This is the only sanctioned mutation of the export flag.
func (q *sqlQuerier) UpdateProcessExport(ctx context.Context, arg UpdateProcessExportParams) (Process, error) {
	var process Process
	err := q.db.GetContext(ctx, &process, updateProcessExport, arg.ID, arg.Export)
	return process, err
}

type InsertEventParams struct {
	Time            time.Time `db:"time"`
	ProcessID       int32     `db:"process"`
	DurationSeconds int64     `db:"duration_seconds"`
}

const insertEvent = `
INSERT INTO events (time, process, duration)
VALUES ($1, $2, make_interval(secs => $3::double precision))
RETURNING id, time, process, EXTRACT(EPOCH FROM duration)::bigint AS duration_seconds
`

func (q *sqlQuerier) InsertEvent(ctx context.Context, arg InsertEventParams) (Event, error) {
	var event Event
	err := q.db.GetContext(ctx, &event, insertEvent, arg.Time, arg.ProcessID, arg.DurationSeconds)
	return event, err
}

const listEventsByProcessID = `
SELECT id, time, process, EXTRACT(EPOCH FROM duration)::bigint AS duration_seconds
FROM events
WHERE process = $1
ORDER BY time, id
`

func (q *sqlQuerier) ListEventsByProcessID(ctx context.Context, processID int32) ([]Event, error) {
	events := []Event{}
	err := q.db.SelectContext(ctx, &events, listEventsByProcessID, processID)
	return events, err
}
