package database

import (
	"database/sql"
	"time"
)

// Process is the canonical identity of a monitored executable. The pair
// (executable, name) is unique and is the external identity used for
// upserts from the ingestion path.
type Process struct {
	ID         int32          `db:"id" json:"id"`
	Executable string         `db:"executable" json:"executable"`
	Name       sql.NullString `db:"name" json:"name"`
	// Export marks whether this process's events are included in external
	// reporting. It defaults to true and is only ever modified by an
	// operator, never by ingestion.
	Export bool `db:"export" json:"export"`
}

// Event is one recorded usage session.
type Event struct {
	ID int32 `db:"id" json:"id"`
	// Time is the session start timestamp as submitted by the client.
	Time      time.Time `db:"time" json:"time"`
	ProcessID int32     `db:"process" json:"process"`
	// DurationSeconds is the session length. The column is a Postgres
	// interval; queries select it as whole seconds.
	DurationSeconds int64 `db:"duration_seconds" json:"duration_seconds"`
}

// Duration returns the event duration as a time.Duration.
func (e Event) Duration() time.Duration {
	return time.Duration(e.DurationSeconds) * time.Second
}
