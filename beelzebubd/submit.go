package beelzebubd

import (
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/xerrors"

	"cdr.dev/slog"

	"github.com/hamuko/beelzebub/beelzebubd/database"
	"github.com/hamuko/beelzebub/beelzebubd/httpapi"
	"github.com/hamuko/beelzebub/beelzebubsdk"
)

func (api *api) postSubmit(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !api.authenticated(r) {
		api.authFailures.Inc()
		httpapi.Write(rw, http.StatusUnauthorized, beelzebubsdk.SubmissionResponse{
			Status: beelzebubsdk.SubmissionStatusUnauthenticated,
		})
		return
	}

	submissions, ok := readSubmissions(rw, r)
	if !ok {
		return
	}

	// One transaction for the whole request: a process insert and its
	// associated event insert either both land or the client retries the
	// submission as a whole.
	err := api.Database.InTx(func(store database.Store) error {
		for _, submission := range submissions {
			process, err := store.UpsertProcess(ctx, database.UpsertProcessParams{
				Executable: submission.Executable,
				Name:       cleanName(submission.Name),
			})
			if err != nil {
				return xerrors.Errorf("resolve process %q: %w", submission.Executable, err)
			}
			_, err = store.InsertEvent(ctx, database.InsertEventParams{
				Time:            submission.Time,
				ProcessID:       process.ID,
				DurationSeconds: submission.Duration,
			})
			if err != nil {
				return xerrors.Errorf("insert event for %q: %w", submission.Executable, err)
			}
		}
		return nil
	})
	if err != nil {
		api.storageErrors.Inc()
		if database.IsForeignKeyViolation(err, database.ForeignKeyEventsProcess) {
			// Only possible if an operator deleted the process between the
			// upsert and the event insert of a retried submission.
			api.Logger.Error(ctx, "process disappeared during submission", slog.Error(err))
		} else {
			api.Logger.Error(ctx, "could not save submission", slog.Error(err))
		}
		httpapi.Write(rw, http.StatusInternalServerError, beelzebubsdk.SubmissionResponse{
			Status: beelzebubsdk.SubmissionStatusDatabaseError,
		})
		return
	}

	for _, submission := range submissions {
		api.Logger.Info(ctx, "event saved", slog.F("submission", submission.DisplayString()))
	}
	api.eventsIngested.Add(float64(len(submissions)))
	httpapi.Write(rw, http.StatusCreated, beelzebubsdk.SubmissionResponse{
		Status: beelzebubsdk.SubmissionStatusOK,
	})
}

// authenticated checks the shared secret. When no secret is configured the
// server accepts all submissions.
func (api *api) authenticated(r *http.Request) bool {
	if api.Secret == "" {
		return true
	}
	provided := r.Header.Get(beelzebubsdk.SecretHeader)
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(api.Secret)) == 1
}

// readSubmissions accepts either a single submission object or an array of
// them, so a client can batch deliveries.
func readSubmissions(rw http.ResponseWriter, r *http.Request) ([]beelzebubsdk.Submission, bool) {
	var raw json.RawMessage
	err := json.NewDecoder(r.Body).Decode(&raw)
	if err != nil {
		httpapi.Write(rw, http.StatusBadRequest, httpapi.Response{
			Message: fmt.Sprintf("read body: %s", err.Error()),
		})
		return nil, false
	}

	var submissions []beelzebubsdk.Submission
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(raw, &submissions)
	} else {
		var submission beelzebubsdk.Submission
		err = json.Unmarshal(raw, &submission)
		submissions = []beelzebubsdk.Submission{submission}
	}
	if err != nil {
		httpapi.Write(rw, http.StatusBadRequest, httpapi.Response{
			Message: fmt.Sprintf("unmarshal submissions: %s", err.Error()),
		})
		return nil, false
	}
	if len(submissions) == 0 {
		httpapi.Write(rw, http.StatusBadRequest, httpapi.Response{
			Message: "no submissions provided",
		})
		return nil, false
	}
	for _, submission := range submissions {
		if !httpapi.Validate(rw, submission) {
			return nil, false
		}
	}
	return submissions, true
}

// cleanName truncates a display name at the first NUL byte. Version info
// read out of some executables comes back with trailing garbage after the
// product name.
func cleanName(name *string) sql.NullString {
	if name == nil {
		return sql.NullString{}
	}
	cleaned, _, _ := strings.Cut(*name, "\x00")
	return sql.NullString{String: cleaned, Valid: true}
}
