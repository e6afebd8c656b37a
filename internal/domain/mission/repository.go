package mission

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicrewards/rewards-api/internal/pkg/database"
	"github.com/civicrewards/rewards-api/internal/pkg/errs"
	"github.com/civicrewards/rewards-api/internal/pkg/occ"
)

const queryTimeout = 3 * time.Second

const pendingIndex = "ux_mission_submissions_pending"

const missionColumns = `id, title, description, points, frequency, cooldown_days, active, expires_at, created_at, updated_at`

const submissionColumns = `id, user_id, mission_id, evidence_url, description, observation, status,
	validated_by_id, validated_at, created_at, updated_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// CreateMission inserts a mission definition.
func (r *Repository) CreateMission(ctx context.Context, m *Mission) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := r.db.GetContext(ctx, m, `
		INSERT INTO missions (id, title, description, points, frequency, cooldown_days, active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+missionColumns,
		m.ID, m.Title, m.Description, m.Points, m.Frequency, m.CooldownDays, m.Active, m.ExpiresAt,
	)
	if err != nil {
		return errs.Wrap(err, "mission repository create mission")
	}
	return nil
}

func (r *Repository) GetMission(ctx context.Context, q database.Queryer, id uuid.UUID) (*Mission, error) {
	var m Mission
	err := q.GetContext(ctx, &m, `SELECT `+missionColumns+` FROM missions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMissionNotFound
		}
		return nil, errs.Wrap(err, "mission repository get mission")
	}
	return &m, nil
}

func (r *Repository) ListAvailableMissions(ctx context.Context, now time.Time) ([]Mission, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Mission, 0)
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+missionColumns+`
		FROM missions
		WHERE active = TRUE AND (expires_at IS NULL OR expires_at > $1)
		ORDER BY created_at DESC`, now)
	if err != nil {
		return nil, errs.Wrap(err, "mission repository list missions")
	}
	return items, nil
}

// LastCompletion returns the most recent completion time, or nil.
func (r *Repository) LastCompletion(ctx context.Context, q database.Queryer, userID, missionID uuid.UUID) (*time.Time, error) {
	var last sql.NullTime
	err := q.GetContext(ctx, &last, `
		SELECT MAX(completed_at)
		FROM mission_completions
		WHERE user_id = $1 AND mission_id = $2`,
		userID, missionID,
	)
	if err != nil {
		return nil, errs.Wrap(err, "mission repository last completion")
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

// LastCompletions returns the latest completion per mission for a user.
func (r *Repository) LastCompletions(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rows []struct {
		MissionID   uuid.UUID `db:"mission_id"`
		CompletedAt time.Time `db:"completed_at"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT mission_id, MAX(completed_at) AS completed_at
		FROM mission_completions
		WHERE user_id = $1
		GROUP BY mission_id`, userID)
	if err != nil {
		return nil, errs.Wrap(err, "mission repository last completions")
	}

	out := make(map[uuid.UUID]time.Time, len(rows))
	for _, row := range rows {
		out[row.MissionID] = row.CompletedAt
	}
	return out, nil
}

func (r *Repository) PendingMissionIDs(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `
		SELECT mission_id FROM mission_submissions
		WHERE user_id = $1 AND status = 'PENDING'`, userID)
	if err != nil {
		return nil, errs.Wrap(err, "mission repository pending missions")
	}

	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (r *Repository) HasPending(ctx context.Context, q database.Queryer, userID, missionID uuid.UUID) (bool, error) {
	var exists bool
	err := q.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM mission_submissions
			WHERE user_id = $1 AND mission_id = $2 AND status = 'PENDING'
		)`, userID, missionID)
	if err != nil {
		return false, errs.Wrap(err, "mission repository has pending")
	}
	return exists, nil
}

// CreateSubmission inserts a PENDING submission. The partial unique index on
// pending rows turns a concurrent duplicate into ErrDuplicatePending.
func (r *Repository) CreateSubmission(ctx context.Context, q database.Queryer, s *Submission) error {
	err := q.GetContext(ctx, s, `
		INSERT INTO mission_submissions (id, user_id, mission_id, evidence_url, description, status)
		VALUES ($1, $2, $3, $4, $5, 'PENDING')
		RETURNING `+submissionColumns,
		s.ID, s.UserID, s.MissionID, s.EvidenceURL, s.Description,
	)
	if err != nil {
		if database.IsUniqueViolation(err, pendingIndex) {
			return ErrDuplicatePending
		}
		return errs.Wrap(err, "mission repository create submission")
	}
	return nil
}

func (r *Repository) GetSubmission(ctx context.Context, q database.Queryer, id uuid.UUID) (*Submission, error) {
	var s Submission
	err := q.GetContext(ctx, &s, `SELECT `+submissionColumns+` FROM mission_submissions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, errs.Wrap(err, "mission repository get submission")
	}
	return &s, nil
}

// Resolve moves a PENDING submission to a terminal status. Only one caller can
// win; the rest get ErrAlreadyProcessed.
func (r *Repository) Resolve(ctx context.Context, q database.Queryer, id uuid.UUID, status SubmissionStatus, adminID uuid.UUID, observation *string, now time.Time) (*Submission, error) {
	var updated Submission
	err := occ.Update(ctx, q, "submission", &updated, `
		UPDATE mission_submissions
		SET status = $2, validated_by_id = $3, validated_at = $4, observation = COALESCE($5, observation), updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+submissionColumns,
		id, status, adminID, now, observation,
	)
	if errors.Is(err, occ.ErrConflict) {
		return nil, occ.Resolve(ctx, func(ctx context.Context) error {
			if _, err := r.GetSubmission(ctx, q, id); err != nil {
				return err
			}
			return ErrAlreadyProcessed
		})
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *Repository) InsertCompletion(ctx context.Context, q database.Queryer, c *Completion) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO mission_completions (id, user_id, mission_id, submission_id, completed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, c.MissionID, c.SubmissionID, c.CompletedAt,
	)
	if err != nil {
		return errs.Wrap(err, "mission repository insert completion")
	}
	return nil
}

// SubmissionFilter narrows ListSubmissions; zero values match everything.
type SubmissionFilter struct {
	UserID uuid.UUID
	Status SubmissionStatus
}

func (r *Repository) ListSubmissions(ctx context.Context, f SubmissionFilter, limit, offset int) ([]Submission, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where := `WHERE ($1::uuid IS NULL OR user_id = $1) AND ($2 = '' OR status = $2)`

	var userID *uuid.UUID
	if f.UserID != uuid.Nil {
		userID = &f.UserID
	}

	order := "DESC"
	if f.Status == StatusPending {
		// Review queue is first-in first-out.
		order = "ASC"
	}

	items := make([]Submission, 0)
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+submissionColumns+`
		FROM mission_submissions
		`+where+`
		ORDER BY created_at `+order+`, id
		LIMIT $3 OFFSET $4`,
		userID, string(f.Status), limit, offset,
	)
	if err != nil {
		return nil, 0, errs.Wrap(err, "mission repository list submissions")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM mission_submissions `+where, userID, string(f.Status)); err != nil {
		return nil, 0, errs.Wrap(err, "mission repository count submissions")
	}
	return items, total, nil
}
