package mission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicrewards/rewards-api/internal/domain/wallet"
	"github.com/civicrewards/rewards-api/internal/pkg/cache"
	"github.com/civicrewards/rewards-api/internal/pkg/clock"
	"github.com/civicrewards/rewards-api/internal/pkg/database"
	"github.com/civicrewards/rewards-api/internal/pkg/logger"
	"github.com/civicrewards/rewards-api/internal/pkg/metrics"
	"github.com/civicrewards/rewards-api/internal/pkg/storage"
	"github.com/civicrewards/rewards-api/internal/pkg/validator"
)

const (
	defaultPageLimit  = 20
	maxPageLimit      = 100
	maxDescriptionLen = 2000
)

// Ledger is the part of the points ledger an approval needs.
type Ledger interface {
	CreditPointsTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, description string, actorID uuid.UUID) (*wallet.Receipt, error)
	Committed(ctx context.Context, r *wallet.Receipt)
}

type Config struct {
	Cooldown  CooldownPolicy
	ListTTL   time.Duration
	UploadTTL time.Duration
}

type Service struct {
	db          *sqlx.DB
	repo        *Repository
	ledger      Ledger
	evidence    storage.EvidenceStore
	invalidator *cache.Invalidator
	clock       clock.Clock
	cfg         Config
}

// NewService wires the mission lifecycle. evidence may be nil, in which case
// upload URLs are unavailable and evidence URLs are not verified.
func NewService(db *sqlx.DB, repo *Repository, ledger Ledger, evidence storage.EvidenceStore, invalidator *cache.Invalidator, clk clock.Clock, cfg Config) *Service {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if cfg.Cooldown.ElectionPeriodDays <= 0 {
		cfg.Cooldown = DefaultCooldownPolicy()
	}
	if cfg.UploadTTL <= 0 {
		cfg.UploadTTL = 15 * time.Minute
	}
	return &Service{
		db:          db,
		repo:        repo,
		ledger:      ledger,
		evidence:    evidence,
		invalidator: invalidator,
		clock:       clk,
		cfg:         cfg,
	}
}

// CreateSubmission records a PENDING claim after checking the mission, the
// single-pending rule and the cooldown.
func (s *Service) CreateSubmission(ctx context.Context, userID, missionID uuid.UUID, evidenceURL, description string) (*Submission, error) {
	evidenceURL = strings.TrimSpace(evidenceURL)
	description = strings.TrimSpace(description)
	if err := validator.ValidateVar(evidenceURL, "required,url"); err != nil {
		return nil, fmt.Errorf("%w: evidence_url must be a valid URL", ErrInvalidInput)
	}
	if len(description) > maxDescriptionLen {
		return nil, fmt.Errorf("%w: description is too long", ErrInvalidInput)
	}

	now := s.clock.Now()

	m, err := s.repo.GetMission(ctx, s.db, missionID)
	if err != nil {
		return nil, err
	}
	if !m.Available(now) {
		return nil, ErrMissionInactive
	}

	pending, err := s.repo.HasPending(ctx, s.db, userID, missionID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrDuplicatePending
	}

	last, err := s.repo.LastCompletion(ctx, s.db, userID, missionID)
	if err != nil {
		return nil, err
	}
	if e := s.cfg.Cooldown.Evaluate(m, last, now); !e.Eligible {
		return nil, &CooldownError{RemainingDays: e.RemainingDays, Until: e.CooldownUntil, Permanent: e.Permanent}
	}

	if err := s.verifyEvidence(ctx, evidenceURL); err != nil {
		return nil, err
	}

	sub := &Submission{
		ID:          uuid.New(),
		UserID:      userID,
		MissionID:   missionID,
		EvidenceURL: evidenceURL,
		Description: description,
	}
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return s.repo.CreateSubmission(ctx, tx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.invalidator.MissionList(ctx, userID)
	metrics.Default().ObserveSubmission(string(StatusPending))
	logger.LogInfo(ctx, "mission submission created",
		"user_id", userID.String(),
		"mission_id", missionID.String(),
		"submission_id", sub.ID.String(),
	)
	return sub, nil
}

func (s *Service) verifyEvidence(ctx context.Context, evidenceURL string) error {
	if s.evidence == nil {
		return nil
	}
	key, ok := s.evidence.KeyFromURL(evidenceURL)
	if !ok {
		return nil
	}
	exists, err := s.evidence.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrEvidenceMissing
	}
	return nil
}

// ApproveSubmission marks the submission APPROVED, records the completion and
// credits the mission's points in one transaction.
func (s *Service) ApproveSubmission(ctx context.Context, submissionID, adminID uuid.UUID, observation *string) (*ApprovalResult, error) {
	sub, err := s.repo.GetSubmission(ctx, s.db, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != StatusPending {
		return nil, ErrAlreadyProcessed
	}

	m, err := s.repo.GetMission(ctx, s.db, sub.MissionID)
	if err != nil {
		return nil, err
	}

	observation = trimmed(observation)
	now := s.clock.Now()

	var (
		updated    *Submission
		completion *Completion
		receipt    *wallet.Receipt
	)
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		updated, err = s.repo.Resolve(ctx, tx, sub.ID, StatusApproved, adminID, observation, now)
		if err != nil {
			return err
		}

		completion = &Completion{
			ID:           uuid.New(),
			UserID:       sub.UserID,
			MissionID:    sub.MissionID,
			SubmissionID: &sub.ID,
			CompletedAt:  now,
		}
		if err := s.repo.InsertCompletion(ctx, tx, completion); err != nil {
			return err
		}

		receipt, err = s.ledger.CreditPointsTx(ctx, tx, sub.UserID, m.Points, "Mission completed: "+m.Title, adminID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			logger.LogWarn(ctx, "submission approval lost race", "submission_id", submissionID.String())
		}
		return nil, err
	}

	s.ledger.Committed(ctx, receipt)
	s.invalidator.MissionList(ctx, sub.UserID)
	metrics.Default().ObserveSubmission(string(StatusApproved))
	logger.LogInfo(ctx, "mission submission approved",
		"submission_id", sub.ID.String(),
		"user_id", sub.UserID.String(),
		"admin_id", adminID.String(),
		"points", m.Points,
	)

	return &ApprovalResult{
		Submission: updated,
		Completion: completion,
		Points:     m.Points,
		Balance:    receipt.Wallet.Balance,
	}, nil
}

// RejectSubmission closes a PENDING submission without points or completion.
func (s *Service) RejectSubmission(ctx context.Context, submissionID, adminID uuid.UUID, reason string) (*Submission, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}

	sub, err := s.repo.GetSubmission(ctx, s.db, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != StatusPending {
		return nil, ErrAlreadyProcessed
	}

	var updated *Submission
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		updated, err = s.repo.Resolve(ctx, tx, sub.ID, StatusRejected, adminID, &reason, s.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidator.MissionList(ctx, sub.UserID)
	metrics.Default().ObserveSubmission(string(StatusRejected))
	logger.LogInfo(ctx, "mission submission rejected",
		"submission_id", sub.ID.String(),
		"user_id", sub.UserID.String(),
		"admin_id", adminID.String(),
	)
	return updated, nil
}

// ListMissions returns available missions with the user's cooldown hints.
// The hints are advisory; CreateSubmission enforces cooldown.
func (s *Service) ListMissions(ctx context.Context, userID uuid.UUID) ([]View, error) {
	return cache.Load(ctx, s.invalidator, cache.MissionListKey(userID), "", s.cfg.ListTTL,
		func(ctx context.Context) ([]View, error) {
			return s.buildViews(ctx, userID)
		})
}

func (s *Service) buildViews(ctx context.Context, userID uuid.UUID) ([]View, error) {
	now := s.clock.Now()
	missions, err := s.repo.ListAvailableMissions(ctx, now)
	if err != nil {
		return nil, err
	}
	completions, err := s.repo.LastCompletions(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending, err := s.repo.PendingMissionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]View, 0, len(missions))
	for i := range missions {
		m := missions[i]
		v := View{Mission: m, HasPending: pending[m.ID]}

		var last *time.Time
		if t, ok := completions[m.ID]; ok {
			last = &t
			v.LastCompletedAt = last
		}

		e := s.cfg.Cooldown.Evaluate(&m, last, now)
		v.Eligible = e.Eligible && !v.HasPending
		if !e.Eligible {
			v.CooldownUntil = e.CooldownUntil
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *Service) ListPendingSubmissions(ctx context.Context, page, limit int) (*SubmissionPage, error) {
	return s.listSubmissions(ctx, SubmissionFilter{Status: StatusPending}, page, limit)
}

func (s *Service) ListUserSubmissions(ctx context.Context, userID uuid.UUID, page, limit int) (*SubmissionPage, error) {
	return s.listSubmissions(ctx, SubmissionFilter{UserID: userID}, page, limit)
}

func (s *Service) listSubmissions(ctx context.Context, f SubmissionFilter, page, limit int) (*SubmissionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	items, total, err := s.repo.ListSubmissions(ctx, f, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return &SubmissionPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// RequestEvidenceUpload returns a presigned PUT target for one evidence file.
func (s *Service) RequestEvidenceUpload(ctx context.Context, userID, missionID uuid.UUID, contentType string) (*EvidenceUpload, error) {
	if s.evidence == nil {
		return nil, storage.ErrNotConfigured
	}

	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !validator.IsEvidenceContentType(contentType) {
		return nil, fmt.Errorf("%w: unsupported evidence content type", ErrInvalidInput)
	}

	now := s.clock.Now()
	m, err := s.repo.GetMission(ctx, s.db, missionID)
	if err != nil {
		return nil, err
	}
	if !m.Available(now) {
		return nil, ErrMissionInactive
	}

	key := fmt.Sprintf("evidence/%s/%s/%s%s", missionID, userID, uuid.New(), evidenceExtensions[contentType])
	uploadURL, err := s.evidence.PresignUpload(ctx, key, contentType, s.cfg.UploadTTL)
	if err != nil {
		return nil, err
	}

	return &EvidenceUpload{
		UploadURL:   uploadURL,
		EvidenceURL: s.evidence.PublicURL(key),
		ContentType: contentType,
		ExpiresAt:   now.Add(s.cfg.UploadTTL),
	}, nil
}

var evidenceExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"video/mp4":       ".mp4",
	"application/pdf": ".pdf",
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
