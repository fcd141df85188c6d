package progress

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"lms-backend/pkg/models"
)

func TestModuleStatus(t *testing.T) {
	cases := []struct {
		name string
		rows []models.ProgressStatus
		want models.ProgressStatus
	}{
		{"empty", nil, models.NotStarted},
		{"all completed", []models.ProgressStatus{models.Completed, models.Completed}, models.Completed},
		{"some completed", []models.ProgressStatus{models.Completed, models.InProgress}, models.InProgress},
		{"none completed", []models.ProgressStatus{models.InProgress, models.NotStarted}, models.NotStarted},
		{"single completed", []models.ProgressStatus{models.Completed}, models.Completed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ModuleStatus(c.rows))
		})
	}
}

func TestEnrollmentRollupZeroModules(t *testing.T) {
	pct, status := EnrollmentRollup(0, 0)
	assert.Equal(t, 100.0, pct)
	assert.Equal(t, models.EnrollmentCompleted, status)
}

func TestEnrollmentRollupRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		total := int64(rng.Intn(30) + 1)
		completed := rng.Int63n(total + 1)
		pct, status := EnrollmentRollup(completed, total)

		assert.InDelta(t, 100*float64(completed)/float64(total), pct, 1e-9)
		switch {
		case completed == total:
			assert.Equal(t, models.EnrollmentCompleted, status)
		case completed > 0:
			assert.Equal(t, models.EnrollmentInProgress, status)
		default:
			assert.Equal(t, models.EnrollmentEnrolled, status)
		}
	}
}
