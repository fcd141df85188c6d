package progress

import "lms-backend/pkg/models"

// ModuleStatus derives a module's status from its content rows:
// none means not started, all completed means completed,
// any completed means in progress.
func ModuleStatus(rows []models.ProgressStatus) models.ProgressStatus {
	if len(rows) == 0 {
		return models.NotStarted
	}
	done := 0
	for _, s := range rows {
		if s == models.Completed {
			done++
		}
	}
	switch {
	case done == len(rows):
		return models.Completed
	case done > 0:
		return models.InProgress
	default:
		return models.NotStarted
	}
}

// EnrollmentRollup returns the completion percentage and derived status.
// A course without modules counts as fully complete.
func EnrollmentRollup(completed, total int64) (float64, models.EnrollmentStatus) {
	if total <= 0 {
		return 100, models.EnrollmentCompleted
	}
	if completed > total {
		completed = total
	}
	pct := float64(completed) / float64(total) * 100
	switch {
	case completed == total:
		return pct, models.EnrollmentCompleted
	case completed > 0:
		return pct, models.EnrollmentInProgress
	default:
		return pct, models.EnrollmentEnrolled
	}
}
