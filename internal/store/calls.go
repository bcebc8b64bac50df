package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/extract"
	"github.com/m-hamzaa22/Voice-dispatch-agent/internal/session"
)

// ErrNotFound is returned when no call record exists for a call_id.
var ErrNotFound = errors.New("call not found")

// Call statuses persisted on call records.
const (
	StatusRegistered = "registered"
	StatusCompleted  = "completed"
)

// CallRecord is one dispatch call as stored: registration metadata plus,
// once finalized, the transcript and structured summary.
type CallRecord struct {
	CallID      string           `json:"call_id"`
	DriverName  string           `json:"driver_name"`
	PhoneNumber string           `json:"phone_number"`
	LoadNumber  string           `json:"load_number"`
	CallStatus  string           `json:"call_status"`
	StartedAt   time.Time        `json:"started_at"`
	EndedAt     *time.Time       `json:"ended_at,omitempty"`
	Transcript  []session.Turn   `json:"transcript,omitempty"`
	Summary     *extract.Summary `json:"structured_summary,omitempty"`
}

// CreateCall registers a call at origination time, before any audio flows.
func (s *Store) CreateCall(ctx context.Context, callID, driverName, phoneNumber, loadNumber string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO call_results (call_id, driver_name, phone_number, load_number, call_status, started_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (call_id) DO NOTHING`,
		callID, driverName, phoneNumber, loadNumber, StatusRegistered,
	)
	if err != nil {
		return fmt.Errorf("insert call record: %w", err)
	}
	return nil
}

// FinalizeCall writes the end-of-call data in one transaction: status,
// end time, full transcript, and the structured summary. A finalize for a
// call_id that was never registered inserts the row instead, so a call that
// arrived mid-flight is still recorded.
func (s *Store) FinalizeCall(ctx context.Context, callID string, transcript []session.Turn, sum extract.Summary) error {
	transcriptJSON, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	summaryJSON, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE call_results
		SET call_status = $1, ended_at = now(), full_transcript = $2, structured_data = $3
		WHERE call_id = $4`,
		StatusCompleted, transcriptJSON, summaryJSON, callID,
	)
	if err != nil {
		return fmt.Errorf("update call record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO call_results (call_id, call_status, started_at, ended_at, full_transcript, structured_data)
			VALUES ($1, $2, now(), now(), $3, $4)`,
			callID, StatusCompleted, transcriptJSON, summaryJSON,
		)
		if err != nil {
			return fmt.Errorf("insert completed call record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetCall returns one call record by call_id.
func (s *Store) GetCall(ctx context.Context, callID string) (CallRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT call_id, driver_name, phone_number, load_number, call_status,
		       started_at, ended_at, full_transcript, structured_data
		FROM call_results
		WHERE call_id = $1`,
		callID,
	)
	rec, err := scanCall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return CallRecord{}, ErrNotFound
	}
	return rec, err
}

// ListCalls returns the most recent call records, newest first.
func (s *Store) ListCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT call_id, driver_name, phone_number, load_number, call_status,
		       started_at, ended_at, full_transcript, structured_data
		FROM call_results
		ORDER BY started_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query call records: %w", err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanCall(row pgx.Row) (CallRecord, error) {
	var (
		rec            CallRecord
		driverName     *string
		phoneNumber    *string
		loadNumber     *string
		endedAt        *time.Time
		transcriptJSON []byte
		summaryJSON    []byte
	)
	err := row.Scan(&rec.CallID, &driverName, &phoneNumber, &loadNumber,
		&rec.CallStatus, &rec.StartedAt, &endedAt, &transcriptJSON, &summaryJSON)
	if err != nil {
		return CallRecord{}, err
	}
	if driverName != nil {
		rec.DriverName = *driverName
	}
	if phoneNumber != nil {
		rec.PhoneNumber = *phoneNumber
	}
	if loadNumber != nil {
		rec.LoadNumber = *loadNumber
	}
	rec.EndedAt = endedAt
	if len(transcriptJSON) > 0 {
		if err := json.Unmarshal(transcriptJSON, &rec.Transcript); err != nil {
			return CallRecord{}, fmt.Errorf("decode transcript for %s: %w", rec.CallID, err)
		}
	}
	if len(summaryJSON) > 0 {
		var sum extract.Summary
		if err := json.Unmarshal(summaryJSON, &sum); err != nil {
			return CallRecord{}, fmt.Errorf("decode summary for %s: %w", rec.CallID, err)
		}
		rec.Summary = &sum
	}
	return rec, nil
}
