// Package sqlite persists shot lifecycle records, flight results, and impact
// candidates, grouped under a per-process session.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/launchlab-data/launchlab/internal/db"
	"github.com/launchlab-data/launchlab/internal/flight"
	"github.com/launchlab-data/launchlab/internal/gates"
	"github.com/launchlab-data/launchlab/internal/impact"
)

// Store writes pipeline outputs for one session.
type Store struct {
	db        *db.DB
	sessionID string
}

// NewStore creates a new session row and returns a store scoped to it.
func NewStore(database *db.DB) (*Store, error) {
	id := uuid.NewString()
	_, err := database.Exec(
		`INSERT INTO sessions (id, started_at) VALUES (?, ?)`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &Store{db: database, sessionID: id}, nil
}

// SessionID returns the session this store writes under.
func (s *Store) SessionID() string { return s.sessionID }

// RecordShot persists a completed lifecycle, with its flight when one was
// computed and valid.
func (s *Store) RecordShot(rec *gates.ShotLifecycleRecord, fl *flight.Result) error {
	var impactAt interface{}
	if rec.ImpactTimestamp != nil {
		impactAt = rec.ImpactTimestamp.UTC()
	}

	res, err := s.db.Exec(
		`INSERT INTO shots (session_id, shot_id, started_at, impact_at, ended_at, refused, refusal_reason, final_state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.sessionID, rec.ShotID, rec.StartTimestamp.UTC(), impactAt, rec.EndTimestamp.UTC(),
		rec.Refused, string(rec.RefusalReason), string(rec.FinalState),
	)
	if err != nil {
		return fmt.Errorf("insert shot %d: %w", rec.ShotID, err)
	}

	if fl == nil || !fl.Valid {
		return nil
	}

	rowID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("shot %d rowid: %w", rec.ShotID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO flights (shot_rowid, apex_m, carry_m, total_m, curvature_m, time_of_flight_s, launch_deg, landing_deg)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rowID, fl.ApexHeight, fl.CarryDistance, fl.TotalDistance,
		fl.Curvature, fl.TimeOfFlight, fl.LaunchAngleDeg, fl.LandingAngleDeg,
	)
	if err != nil {
		return fmt.Errorf("insert flight for shot %d: %w", rec.ShotID, err)
	}
	return nil
}

// RecordImpactCandidate persists one accepted anomaly peak.
func (s *Store) RecordImpactCandidate(c *impact.Candidate) error {
	_, err := s.db.Exec(
		`INSERT INTO impact_candidates (session_id, peak_frame_id, peak_at, score, percentile, signals)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.sessionID, c.PeakFrameID, c.PeakTimestamp.UTC(),
		c.Score, c.BaselinePercentile, strings.Join(c.TriggeringSignals, ","),
	)
	if err != nil {
		return fmt.Errorf("insert impact candidate frame %d: %w", c.PeakFrameID, err)
	}
	return nil
}

// ShotRow is one persisted shot with its optional flight.
type ShotRow struct {
	ShotID        uint64
	StartedAt     time.Time
	ImpactAt      *time.Time
	EndedAt       time.Time
	Refused       bool
	RefusalReason string
	FinalState    string

	Flight *FlightRow
}

// FlightRow is a persisted flight result.
type FlightRow struct {
	ApexM         float64
	CarryM        float64
	TotalM        float64
	CurvatureM    float64
	TimeOfFlightS float64
	LaunchDeg     float64
	LandingDeg    float64
}

// SessionRow is one recording session.
type SessionRow struct {
	ID        string
	StartedAt time.Time
}

// ListSessions returns all sessions, newest first.
func ListSessions(database *db.DB) ([]SessionRow, error) {
	rows, err := database.Query(`SELECT id, started_at FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var s SessionRow
		if err := rows.Scan(&s.ID, &s.StartedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListShots returns a session's shots in shot-id order.
func (s *Store) ListShots(sessionID string) ([]ShotRow, error) {
	return ListShots(s.db, sessionID)
}

// ListShots returns a session's shots in shot-id order. Read-only; usable
// by reporting tools without creating a session.
func ListShots(database *db.DB, sessionID string) ([]ShotRow, error) {
	rows, err := database.Query(
		`SELECT sh.shot_id, sh.started_at, sh.impact_at, sh.ended_at, sh.refused, sh.refusal_reason, sh.final_state,
		        fl.apex_m, fl.carry_m, fl.total_m, fl.curvature_m, fl.time_of_flight_s, fl.launch_deg, fl.landing_deg
		 FROM shots sh
		 LEFT JOIN flights fl ON fl.shot_rowid = sh.id
		 WHERE sh.session_id = ?
		 ORDER BY sh.shot_id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list shots: %w", err)
	}
	defer rows.Close()

	var out []ShotRow
	for rows.Next() {
		var r ShotRow
		var impactAt sql.NullTime
		var apex, carry, total, curvature, tof, launch, landing sql.NullFloat64
		if err := rows.Scan(
			&r.ShotID, &r.StartedAt, &impactAt, &r.EndedAt, &r.Refused, &r.RefusalReason, &r.FinalState,
			&apex, &carry, &total, &curvature, &tof, &launch, &landing,
		); err != nil {
			return nil, fmt.Errorf("scan shot: %w", err)
		}
		if impactAt.Valid {
			t := impactAt.Time
			r.ImpactAt = &t
		}
		if apex.Valid {
			r.Flight = &FlightRow{
				ApexM:         apex.Float64,
				CarryM:        carry.Float64,
				TotalM:        total.Float64,
				CurvatureM:    curvature.Float64,
				TimeOfFlightS: tof.Float64,
				LaunchDeg:     launch.Float64,
				LandingDeg:    landing.Float64,
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
