package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/halaqa-api/internal/models"
	appErrors "github.com/noah-isme/halaqa-api/pkg/errors"
)

type halaqaReader interface {
	FindByID(ctx context.Context, id string) (*models.Halaqa, error)
}

type activeEnrollmentReader interface {
	FindActive(ctx context.Context, studentID, halaqaID string) (*models.Enrollment, error)
	CountActive(ctx context.Context, halaqaID string) (int, error)
}

// EligibilityReason explains why a student cannot be placed in a halaqa.
type EligibilityReason string

const (
	EligibilityHalaqaNotFound      EligibilityReason = "HALAQA_NOT_FOUND"
	EligibilityDuplicateEnrollment EligibilityReason = "DUPLICATE_ENROLLMENT"
	EligibilityHalaqaFull          EligibilityReason = "HALAQA_FULL"
)

// EligibilityDecision is the read-only outcome of an eligibility evaluation.
type EligibilityDecision struct {
	Eligible    bool
	Reason      EligibilityReason
	Halaqa      *models.Halaqa
	ActiveCount int
}

// EligibilityService decides whether a student may be placed in a halaqa.
type EligibilityService struct {
	halaqas     halaqaReader
	enrollments activeEnrollmentReader
}

// NewEligibilityService constructs the resolver.
func NewEligibilityService(halaqas halaqaReader, enrollments activeEnrollmentReader) *EligibilityService {
	return &EligibilityService{halaqas: halaqas, enrollments: enrollments}
}

// Evaluate runs the checks in order: the halaqa exists, the student holds no
// ACTIVE enrollment in it, and a configured capacity is not yet reached.
func (s *EligibilityService) Evaluate(ctx context.Context, studentID, halaqaID string) (*EligibilityDecision, error) {
	halaqa, err := s.halaqas.FindByID(ctx, halaqaID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &EligibilityDecision{Reason: EligibilityHalaqaNotFound}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load halaqa")
	}
	decision := &EligibilityDecision{Halaqa: halaqa}

	if _, err := s.enrollments.FindActive(ctx, studentID, halaqaID); err == nil {
		decision.Reason = EligibilityDuplicateEnrollment
		return decision, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}

	count, err := s.enrollments.CountActive(ctx, halaqaID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count halaqa members")
	}
	decision.ActiveCount = count
	if halaqa.Capacity != nil && count >= *halaqa.Capacity {
		decision.Reason = EligibilityHalaqaFull
		return decision, nil
	}

	decision.Eligible = true
	return decision, nil
}

// Check evaluates eligibility and converts a negative decision into its typed error.
func (s *EligibilityService) Check(ctx context.Context, studentID, halaqaID string) (*models.Halaqa, error) {
	decision, err := s.Evaluate(ctx, studentID, halaqaID)
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}
	return decision.Halaqa, nil
}

// Err maps the decision reason onto the domain error, or nil when eligible.
func (d *EligibilityDecision) Err() error {
	if d == nil || d.Eligible {
		return nil
	}
	switch d.Reason {
	case EligibilityHalaqaNotFound:
		return appErrors.Clone(appErrors.ErrNotFound, "halaqa not found")
	case EligibilityDuplicateEnrollment:
		return appErrors.ErrDuplicateEnrollment
	case EligibilityHalaqaFull:
		return appErrors.ErrHalaqaFull
	default:
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "student is not eligible")
	}
}
