package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/halaqa-api/internal/models"
	appErrors "github.com/noah-isme/halaqa-api/pkg/errors"
)

type failingEnrollmentReader struct{}

func (failingEnrollmentReader) FindActive(ctx context.Context, studentID, halaqaID string) (*models.Enrollment, error) {
	return nil, errors.New("db down")
}

func (failingEnrollmentReader) CountActive(ctx context.Context, halaqaID string) (int, error) {
	return 0, errors.New("db down")
}

func TestEligibilityServiceEvaluate(t *testing.T) {
	f := newWorkflowFixture(t, EnrollmentServiceConfig{})
	f.enrollments.seed(models.Enrollment{StudentID: "student-1", HalaqaID: "h-2"})

	cases := []struct {
		name     string
		student  string
		halaqa   string
		eligible bool
		reason   EligibilityReason
		want     error
	}{
		{"open seat", "student-1", "h-1", true, "", nil},
		{"unknown halaqa", "student-1", "h-404", false, EligibilityHalaqaNotFound, appErrors.ErrNotFound},
		{"already active", "student-1", "h-2", false, EligibilityDuplicateEnrollment, appErrors.ErrDuplicateEnrollment},
		{"capacity reached", "student-1", "h-small", false, EligibilityHalaqaFull, appErrors.ErrHalaqaFull},
		{"duplicate checked before capacity", "student-2", "h-small", false, EligibilityDuplicateEnrollment, appErrors.ErrDuplicateEnrollment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := f.eligibility.Evaluate(context.Background(), tc.student, tc.halaqa)
			require.NoError(t, err)
			assert.Equal(t, tc.eligible, decision.Eligible)
			assert.Equal(t, tc.reason, decision.Reason)

			halaqa, err := f.eligibility.Check(context.Background(), tc.student, tc.halaqa)
			if tc.want == nil {
				require.NoError(t, err)
				assert.Equal(t, tc.halaqa, halaqa.ID)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEligibilityServiceIsReadOnly(t *testing.T) {
	f := newWorkflowFixture(t, EnrollmentServiceConfig{})
	for i := 0; i < 3; i++ {
		_, err := f.eligibility.Evaluate(context.Background(), "student-1", "h-1")
		require.NoError(t, err)
	}
	assert.Empty(t, f.enrollments.active("student-1", ""))
}

func TestEligibilityServiceSurfacesStoreFailures(t *testing.T) {
	halaqas := &memHalaqas{}
	halaqas.add(models.Halaqa{ID: "h-1"})
	svc := NewEligibilityService(halaqas, failingEnrollmentReader{})

	_, err := svc.Evaluate(context.Background(), "student-1", "h-1")
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
