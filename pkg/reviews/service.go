// Package reviews runs the content approval workflow. A course review drives
// the course through under_review to approved or back to draft.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
)

var errReviewNotFound = apierr.NotFound("Review not found")

type CreateRequest struct {
	ContentType models.ReviewContent `json:"content_type" validate:"required,oneof=course module quiz document video"`
	ContentID   uint                 `json:"content_id" validate:"required"`
	ReviewerID  *uint                `json:"reviewer_id"`
	ReviewNotes string               `json:"review_notes"`
}

type UpdateRequest struct {
	Status      *models.ReviewStatus `json:"status" validate:"omitempty,oneof=pending approved rejected needs_revision"`
	ReviewNotes *string              `json:"review_notes"`
}

type AssignRequest struct {
	ReviewerID uint `json:"reviewer_id" validate:"required"`
}

type BulkRequest struct {
	ReviewIDs   []uint              `json:"review_ids" validate:"required,min=1,max=100"`
	Action      models.ReviewStatus `json:"action" validate:"required,oneof=approved rejected needs_revision"`
	ReviewNotes string              `json:"review_notes"`
}

type Filter struct {
	ContentType models.ReviewContent
	Status      models.ReviewStatus
	ReviewerID  *uint
	SubmitterID *uint
	PendingOnly bool
}

type ReviewView struct {
	models.ContentReview
	SubmitterName string `json:"submitter_name"`
	ReviewerName  string `json:"reviewer_name"`
}

type Stats struct {
	Total         int64            `json:"total_reviews"`
	Pending       int64            `json:"pending_reviews"`
	Approved      int64            `json:"approved_reviews"`
	Rejected      int64            `json:"rejected_reviews"`
	NeedsRevision int64            `json:"needs_revision_reviews"`
	ByType        map[string]int64 `json:"reviews_by_type"`
}

type BulkResult struct {
	Updated []uint `json:"updated"`
	Skipped []uint `json:"skipped"`
}

type Service struct {
	db    *gorm.DB
	audit audit.Recorder
	log   *logger.Logger
	now   func() time.Time
}

func NewService(db *gorm.DB, rec audit.Recorder, baseLog *logger.Logger) *Service {
	return &Service{db: db, audit: rec, log: baseLog.With("service", "ReviewService"), now: time.Now}
}

// courseOf resolves the reviewed content to the course that owns it.
func courseOf(tx *gorm.DB, ct models.ReviewContent, id uint) (*models.Course, error) {
	var courseID uint
	switch ct {
	case models.ReviewCourse:
		courseID = id
	case models.ReviewModule, models.ReviewVideo:
		var m models.Module
		if err := tx.Limit(1).Find(&m, id).Error; err != nil {
			return nil, err
		}
		if m.ID == 0 || (ct == models.ReviewVideo && m.ContentType != models.ContentVideo) {
			return nil, apierr.NotFound("Content not found")
		}
		courseID = m.CourseID
	case models.ReviewQuiz:
		var q models.Quiz
		if err := tx.Limit(1).Find(&q, id).Error; err != nil {
			return nil, err
		}
		if q.ID == 0 {
			return nil, apierr.NotFound("Content not found")
		}
		var m models.Module
		if err := tx.Limit(1).Find(&m, q.ModuleID).Error; err != nil {
			return nil, err
		}
		courseID = m.CourseID
	case models.ReviewDocument:
		var d models.Document
		if err := tx.Limit(1).Find(&d, id).Error; err != nil {
			return nil, err
		}
		if d.ID == 0 || d.ModuleID == nil {
			return nil, apierr.NotFound("Content not found")
		}
		var m models.Module
		if err := tx.Limit(1).Find(&m, *d.ModuleID).Error; err != nil {
			return nil, err
		}
		courseID = m.CourseID
	default:
		return nil, apierr.BadRequest("Unsupported content type")
	}
	var c models.Course
	if err := tx.Limit(1).Find(&c, courseID).Error; err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, apierr.NotFound("Content not found")
	}
	return &c, nil
}

func checkReviewer(tx *gorm.DB, id uint) error {
	var u models.User
	if err := tx.Limit(1).Find(&u, id).Error; err != nil {
		return err
	}
	if u.ID == 0 || !u.IsActive || u.Role == models.RoleEmployee {
		return apierr.BadRequest("Reviewer must be an active admin, HR or resource personnel user")
	}
	return nil
}

// courseStatusFor maps a review outcome onto the course lifecycle. Published
// and archived courses are never moved by a review.
func courseStatusFor(current models.CourseStatus, rs models.ReviewStatus) (models.CourseStatus, bool) {
	if current == models.CoursePublished || current == models.CourseArchived {
		return current, false
	}
	var next models.CourseStatus
	switch rs {
	case models.ReviewApproved:
		next = models.CourseApproved
	case models.ReviewRejected, models.ReviewNeedsRevision:
		next = models.CourseDraft
	default:
		next = models.CourseUnderReview
	}
	return next, next != current
}

func wrap(op string, err error) error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Create submits content for review. Only staff or whoever manages the
// owning course may submit, and one pending review per item is allowed.
func (s *Service) Create(ctx context.Context, actor models.User, req CreateRequest) (*ReviewView, error) {
	var rev models.ContentReview
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		course, err := courseOf(tx, req.ContentType, req.ContentID)
		if err != nil {
			return err
		}
		if !actor.IsStaff() && !course.ManagedBy(actor) {
			return apierr.Forbidden("Not enough permissions")
		}
		if req.ContentType == models.ReviewCourse && (course.Status == models.CoursePublished || course.Status == models.CourseArchived) {
			return apierr.BadRequest("Course is already " + string(course.Status))
		}
		var n int64
		if err := tx.Model(&models.ContentReview{}).
			Where("content_type = ? AND content_id = ? AND status = ?", req.ContentType, req.ContentID, models.ReviewPending).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apierr.BadRequest("Content already has a pending review")
		}
		if req.ReviewerID != nil {
			if err := checkReviewer(tx, *req.ReviewerID); err != nil {
				return err
			}
		}
		rev = models.ContentReview{
			ContentType: req.ContentType,
			ContentID:   req.ContentID,
			CourseID:    &course.ID,
			SubmitterID: actor.ID,
			ReviewerID:  req.ReviewerID,
			Status:      models.ReviewPending,
			ReviewNotes: req.ReviewNotes,
		}
		if err := tx.Create(&rev).Error; err != nil {
			return err
		}
		if req.ContentType == models.ReviewCourse && course.Status != models.CourseUnderReview {
			return tx.Model(course).Update("status", models.CourseUnderReview).Error
		}
		return nil
	})
	if err != nil {
		return nil, wrap("create review", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionCreate, EntityType: "ContentReview", EntityID: &rev.ID,
		Details: map[string]interface{}{"content_type": rev.ContentType, "content_id": rev.ContentID}})
	return s.view(ctx, rev)
}

func (s *Service) view(ctx context.Context, r models.ContentReview) (*ReviewView, error) {
	views, err := s.views(ctx, []models.ContentReview{r})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *Service) views(ctx context.Context, rows []models.ContentReview) ([]ReviewView, error) {
	ids := make([]uint, 0, 2*len(rows))
	for _, r := range rows {
		ids = append(ids, r.SubmitterID)
		if r.ReviewerID != nil {
			ids = append(ids, *r.ReviewerID)
		}
	}
	names := map[uint]string{}
	if len(ids) > 0 {
		var users []models.User
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			names[u.ID] = u.FullName()
		}
	}
	out := make([]ReviewView, 0, len(rows))
	for _, r := range rows {
		v := ReviewView{ContentReview: r, SubmitterName: names[r.SubmitterID]}
		if r.ReviewerID != nil {
			v.ReviewerName = names[*r.ReviewerID]
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, f Filter, p pagination.Params) (pagination.Page[ReviewView], error) {
	q := s.db.WithContext(ctx).Model(&models.ContentReview{})
	if f.ContentType != "" {
		q = q.Where("content_type = ?", f.ContentType)
	}
	switch {
	case f.PendingOnly:
		q = q.Where("status = ?", models.ReviewPending)
	case f.Status != "":
		q = q.Where("status = ?", f.Status)
	}
	if f.ReviewerID != nil {
		q = q.Where("reviewer_id = ?", *f.ReviewerID)
	}
	if f.SubmitterID != nil {
		q = q.Where("submitter_id = ?", *f.SubmitterID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[ReviewView]{}, err
	}
	var rows []models.ContentReview
	if err := q.Order("created_at desc, id desc").Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return pagination.Page[ReviewView]{}, err
	}
	views, err := s.views(ctx, rows)
	if err != nil {
		return pagination.Page[ReviewView]{}, err
	}
	return pagination.New(views, total, p), nil
}

func (s *Service) find(ctx context.Context, id uint) (*models.ContentReview, error) {
	var r models.ContentReview
	if err := s.db.WithContext(ctx).Limit(1).Find(&r, id).Error; err != nil {
		return nil, err
	}
	if r.ID == 0 {
		return nil, errReviewNotFound
	}
	return &r, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*ReviewView, error) {
	r, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, *r)
}

func (s *Service) Assign(ctx context.Context, actor models.User, id uint, req AssignRequest) (*ReviewView, error) {
	r, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkReviewer(s.db.WithContext(ctx), req.ReviewerID); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(r).Update("reviewer_id", req.ReviewerID).Error; err != nil {
		return nil, fmt.Errorf("assign review: %w", err)
	}
	r.ReviewerID = &req.ReviewerID
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionUpdate, EntityType: "ContentReview", EntityID: &r.ID,
		Details: map[string]interface{}{"reviewer_id": req.ReviewerID}})
	return s.view(ctx, *r)
}

func canDecide(actor models.User, r models.ContentReview) bool {
	return actor.Role == models.RoleAdmin || (r.ReviewerID != nil && *r.ReviewerID == actor.ID)
}

// decide applies a status to one review and carries it onto the course
// when the review is for a course.
func (s *Service) decide(tx *gorm.DB, r *models.ContentReview, status models.ReviewStatus, notes *string) error {
	updates := map[string]interface{}{"status": status}
	if status == models.ReviewPending {
		updates["reviewed_at"] = nil
	} else {
		updates["reviewed_at"] = s.now()
	}
	if notes != nil {
		updates["review_notes"] = *notes
	}
	if err := tx.Model(r).Updates(updates).Error; err != nil {
		return err
	}
	r.Status = status
	if r.ContentType != models.ReviewCourse {
		return nil
	}
	var c models.Course
	if err := tx.Limit(1).Find(&c, r.ContentID).Error; err != nil {
		return err
	}
	if c.ID == 0 {
		return nil
	}
	if next, moved := courseStatusFor(c.Status, status); moved {
		return tx.Model(&c).Update("status", next).Error
	}
	return nil
}

func (s *Service) Update(ctx context.Context, actor models.User, id uint, req UpdateRequest) (*ReviewView, error) {
	var r models.ContentReview
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Limit(1).Find(&r, id).Error; err != nil {
			return err
		}
		if r.ID == 0 {
			return errReviewNotFound
		}
		if !canDecide(actor, r) {
			return apierr.Forbidden("Not authorized to update this review")
		}
		if req.Status == nil {
			if req.ReviewNotes == nil {
				return nil
			}
			return tx.Model(&r).Update("review_notes", *req.ReviewNotes).Error
		}
		return s.decide(tx, &r, *req.Status, req.ReviewNotes)
	})
	if err != nil {
		return nil, wrap("update review", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionUpdate, EntityType: "ContentReview", EntityID: &r.ID,
		Details: map[string]interface{}{"status": r.Status}})
	return s.Get(ctx, id)
}

// Delete withdraws a review. A course left under_review by a pending
// review goes back to draft.
func (s *Service) Delete(ctx context.Context, actor models.User, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r models.ContentReview
		if err := tx.Limit(1).Find(&r, id).Error; err != nil {
			return err
		}
		if r.ID == 0 {
			return errReviewNotFound
		}
		if actor.Role != models.RoleAdmin && r.SubmitterID != actor.ID {
			return apierr.Forbidden("Not authorized to delete this review")
		}
		if err := tx.Delete(&r).Error; err != nil {
			return err
		}
		if r.ContentType == models.ReviewCourse && r.Status == models.ReviewPending {
			return tx.Model(&models.Course{}).
				Where("id = ? AND status = ?", r.ContentID, models.CourseUnderReview).
				Update("status", models.CourseDraft).Error
		}
		return nil
	})
	if err != nil {
		return wrap("delete review", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionDelete, EntityType: "ContentReview", EntityID: &id})
	return nil
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	out := &Stats{ByType: map[string]int64{}}
	var rows []struct {
		ContentType string
		Status      string
		N           int64
	}
	if err := db.Model(&models.ContentReview{}).Select("content_type, status, COUNT(*) AS n").
		Group("content_type, status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out.Total += r.N
		out.ByType[r.ContentType] += r.N
		switch models.ReviewStatus(r.Status) {
		case models.ReviewPending:
			out.Pending += r.N
		case models.ReviewApproved:
			out.Approved += r.N
		case models.ReviewRejected:
			out.Rejected += r.N
		case models.ReviewNeedsRevision:
			out.NeedsRevision += r.N
		}
	}
	return out, nil
}

// BulkAction decides many reviews at once, skipping the ones actor may not
// decide.
func (s *Service) BulkAction(ctx context.Context, actor models.User, req BulkRequest) (*BulkResult, error) {
	out := &BulkResult{Updated: []uint{}, Skipped: []uint{}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.ContentReview
		if err := tx.Where("id IN ?", req.ReviewIDs).Order("id").Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return apierr.NotFound("No reviews found")
		}
		var notes *string
		if req.ReviewNotes != "" {
			notes = &req.ReviewNotes
		}
		for i := range rows {
			if !canDecide(actor, rows[i]) {
				out.Skipped = append(out.Skipped, rows[i].ID)
				continue
			}
			if err := s.decide(tx, &rows[i], req.Action, notes); err != nil {
				return err
			}
			out.Updated = append(out.Updated, rows[i].ID)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("bulk review action", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionUpdate, EntityType: "ContentReview",
		Details: map[string]interface{}{"action": req.Action, "updated": out.Updated, "skipped": out.Skipped}})
	return out, nil
}
