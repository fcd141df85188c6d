package courses

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/models"
	"lms-backend/pkg/modules"
	"lms-backend/pkg/pagination"
	"lms-backend/pkg/search"
)

var errCourseNotFound = apierr.NotFound("Course not found")

type CourseRequest struct {
	Title             string            `json:"title" validate:"required,max=200"`
	Description       string            `json:"description"`
	CategoryID        *uint             `json:"category_id"`
	DifficultyLevel   models.Difficulty `json:"difficulty_level" validate:"omitempty,oneof=beginner intermediate advanced"`
	EstimatedDuration int               `json:"estimated_duration" validate:"gte=0"`
	IsMandatory       bool              `json:"is_mandatory"`
	Prerequisites     []uint            `json:"prerequisites"`
	Tags              []string          `json:"tags"`
	ThumbnailURL      string            `json:"thumbnail_url" validate:"omitempty,max=500"`
}

type CourseUpdate struct {
	Title             *string              `json:"title" validate:"omitempty,max=200"`
	Description       *string              `json:"description"`
	CategoryID        *uint                `json:"category_id"`
	Status            *models.CourseStatus `json:"status" validate:"omitempty,oneof=draft under_review approved published archived"`
	DifficultyLevel   *models.Difficulty   `json:"difficulty_level" validate:"omitempty,oneof=beginner intermediate advanced"`
	EstimatedDuration *int                 `json:"estimated_duration" validate:"omitempty,gte=0"`
	IsMandatory       *bool                `json:"is_mandatory"`
	Prerequisites     []uint               `json:"prerequisites"`
	Tags              []string             `json:"tags"`
	ThumbnailURL      *string              `json:"thumbnail_url" validate:"omitempty,max=500"`
}

type ListFilter struct {
	CategoryID  *uint
	Difficulty  string
	Status      string
	CreatorID   *uint
	IsMandatory *bool
	Search      string
	SortBy      string
	SortOrder   string
}

// sortColumns is the whitelist for ?sort_by=.
var sortColumns = map[string]string{
	"created_at":         "courses.created_at",
	"updated_at":         "courses.updated_at",
	"title":              "courses.title",
	"difficulty":         "courses.difficulty_level",
	"published_at":       "courses.published_at",
	"estimated_duration": "courses.estimated_duration",
}

type CourseSummary struct {
	models.Course
	CategoryName     string `json:"category_name"`
	CreatorName      string `json:"creator_name"`
	TotalModules     int64  `json:"total_modules"`
	TotalEnrollments int64  `json:"total_enrollments"`
}

type CourseDetail struct {
	CourseSummary
	CompletionRate float64 `json:"completion_rate"`
	UserProgress   float64 `json:"user_progress"`
}

type Service struct {
	db      *gorm.DB
	indexer search.Indexer
	audit   audit.Recorder
	log     *logger.Logger
}

func NewService(db *gorm.DB, indexer search.Indexer, rec audit.Recorder, baseLog *logger.Logger) *Service {
	return &Service{db: db, indexer: indexer, audit: rec, log: baseLog.With("service", "CourseService")}
}

func (s *Service) List(ctx context.Context, f ListFilter, p pagination.Params) (pagination.Page[CourseSummary], error) {
	q := s.db.WithContext(ctx).Model(&models.Course{})
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}
	if f.Difficulty != "" {
		q = q.Where("difficulty_level = ?", f.Difficulty)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CreatorID != nil {
		q = q.Where("creator_id = ?", *f.CreatorID)
	}
	if f.IsMandatory != nil {
		q = q.Where("is_mandatory = ?", *f.IsMandatory)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[CourseSummary]{}, err
	}
	var rows []models.Course
	if err := q.Order(orderClause(f.SortBy, f.SortOrder)).Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return pagination.Page[CourseSummary]{}, err
	}
	items := make([]CourseSummary, 0, len(rows))
	for _, c := range rows {
		sum, err := s.summarize(ctx, c)
		if err != nil {
			return pagination.Page[CourseSummary]{}, err
		}
		items = append(items, *sum)
	}
	return pagination.New(items, total, p), nil
}

func orderClause(sortBy, order string) string {
	col, ok := sortColumns[sortBy]
	if !ok {
		col = sortColumns["created_at"]
	}
	if strings.EqualFold(order, "asc") {
		return col + " asc, courses.id asc"
	}
	return col + " desc, courses.id desc"
}

func (s *Service) summarize(ctx context.Context, c models.Course) (*CourseSummary, error) {
	db := s.db.WithContext(ctx)
	out := &CourseSummary{Course: c, CategoryName: "Unknown", CreatorName: "Unknown"}
	if c.CategoryID != nil {
		var cat models.Category
		if err := db.Limit(1).Find(&cat, *c.CategoryID).Error; err != nil {
			return nil, err
		}
		if cat.ID != 0 {
			out.CategoryName = cat.Name
		}
	}
	var creator models.User
	if err := db.Limit(1).Find(&creator, c.CreatorID).Error; err != nil {
		return nil, err
	}
	if creator.ID != 0 {
		out.CreatorName = creator.FullName()
	}
	if err := db.Model(&models.Module{}).Where("course_id = ?", c.ID).Count(&out.TotalModules).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Enrollment{}).Where("course_id = ?", c.ID).Count(&out.TotalEnrollments).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) find(ctx context.Context, id uint) (*models.Course, error) {
	var c models.Course
	if err := s.db.WithContext(ctx).Limit(1).Find(&c, id).Error; err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, errCourseNotFound
	}
	return &c, nil
}

// Get returns the course with counts, the share of completed enrollments and
// the caller's own progress when enrolled.
func (s *Service) Get(ctx context.Context, id, viewerID uint) (*CourseDetail, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	sum, err := s.summarize(ctx, *c)
	if err != nil {
		return nil, err
	}
	detail := &CourseDetail{CourseSummary: *sum}
	if sum.TotalEnrollments > 0 {
		var done int64
		err := s.db.WithContext(ctx).Model(&models.Enrollment{}).
			Where("course_id = ? AND status = ?", id, models.EnrollmentCompleted).Count(&done).Error
		if err != nil {
			return nil, err
		}
		detail.CompletionRate = float64(done) / float64(sum.TotalEnrollments) * 100
	}
	var enr models.Enrollment
	if err := s.db.WithContext(ctx).Where("user_id = ? AND course_id = ?", viewerID, id).Limit(1).Find(&enr).Error; err != nil {
		return nil, err
	}
	detail.UserProgress = enr.ProgressPercentage
	return detail, nil
}

func (s *Service) checkRefs(ctx context.Context, categoryID *uint, prereqs []uint, self uint) error {
	db := s.db.WithContext(ctx)
	if categoryID != nil {
		var n int64
		if err := db.Model(&models.Category{}).Where("id = ?", *categoryID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apierr.BadRequest("Invalid category ID")
		}
	}
	for _, id := range prereqs {
		var n int64
		if err := db.Model(&models.Course{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 || id == self {
			return apierr.BadRequest(fmt.Sprintf("Invalid prerequisite course ID: %d", id))
		}
	}
	return nil
}

func toJSON(v interface{}) models.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return models.JSON("[]")
	}
	return models.JSON(b)
}

func (s *Service) Create(ctx context.Context, creator models.User, req CourseRequest, ip string) (*CourseDetail, error) {
	if err := s.checkRefs(ctx, req.CategoryID, req.Prerequisites, 0); err != nil {
		return nil, err
	}
	if req.DifficultyLevel == "" {
		req.DifficultyLevel = models.Beginner
	}
	if req.Prerequisites == nil {
		req.Prerequisites = []uint{}
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}
	c := models.Course{
		Title:             req.Title,
		Description:       req.Description,
		CategoryID:        req.CategoryID,
		CreatorID:         creator.ID,
		Status:            models.CourseDraft,
		DifficultyLevel:   req.DifficultyLevel,
		EstimatedDuration: req.EstimatedDuration,
		IsMandatory:       req.IsMandatory,
		Prerequisites:     toJSON(req.Prerequisites),
		Tags:              toJSON(req.Tags),
		ThumbnailURL:      req.ThumbnailURL,
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}
	s.reindex(ctx, c)
	s.audit.Record(ctx, audit.Entry{UserID: &creator.ID, Action: models.ActionCreate, EntityType: "Course", EntityID: &c.ID, IP: ip,
		Details: map[string]interface{}{"title": c.Title}})
	return s.Get(ctx, c.ID, creator.ID)
}

func (s *Service) Update(ctx context.Context, user models.User, id uint, req CourseUpdate, ip string) (*CourseDetail, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.ManagedBy(user) {
		return nil, apierr.Forbidden("Not enough permissions")
	}
	if err := s.checkRefs(ctx, req.CategoryID, req.Prerequisites, id); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.CategoryID != nil {
		updates["category_id"] = *req.CategoryID
	}
	if req.DifficultyLevel != nil {
		updates["difficulty_level"] = *req.DifficultyLevel
	}
	if req.EstimatedDuration != nil {
		updates["estimated_duration"] = *req.EstimatedDuration
	}
	if req.IsMandatory != nil {
		updates["is_mandatory"] = *req.IsMandatory
	}
	if req.Prerequisites != nil {
		updates["prerequisites"] = toJSON(req.Prerequisites)
	}
	if req.Tags != nil {
		updates["tags"] = toJSON(req.Tags)
	}
	if req.ThumbnailURL != nil {
		updates["thumbnail_url"] = *req.ThumbnailURL
	}
	if req.Status != nil && *req.Status != c.Status {
		if *req.Status == models.CoursePublished {
			if err := s.checkPublishable(ctx, *c); err != nil {
				return nil, err
			}
			updates["published_at"] = time.Now()
		}
		updates["status"] = *req.Status
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(c).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update course: %w", err)
		}
	}
	if c, err = s.find(ctx, id); err != nil {
		return nil, err
	}
	s.reindex(ctx, *c)
	s.audit.Record(ctx, audit.Entry{UserID: &user.ID, Action: models.ActionUpdate, EntityType: "Course", EntityID: &c.ID, IP: ip,
		Details: map[string]interface{}{"fields": len(updates)}})
	return s.Get(ctx, id, user.ID)
}

func (s *Service) checkPublishable(ctx context.Context, c models.Course) error {
	if c.Status == models.CoursePublished {
		return apierr.BadRequest("Course is already published")
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Module{}).Where("course_id = ?", c.ID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return apierr.BadRequest("Cannot publish course without modules")
	}
	return nil
}

// Publish requires at least one module and stamps published_at.
func (s *Service) Publish(ctx context.Context, user models.User, id uint) (*CourseDetail, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.ManagedBy(user) {
		return nil, apierr.Forbidden("Not enough permissions")
	}
	if err := s.checkPublishable(ctx, *c); err != nil {
		return nil, err
	}
	now := time.Now()
	err = s.db.WithContext(ctx).Model(c).Updates(map[string]interface{}{
		"status":       models.CoursePublished,
		"published_at": now,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("publish course: %w", err)
	}
	c.Status, c.PublishedAt = models.CoursePublished, &now
	s.reindex(ctx, *c)
	s.audit.Record(ctx, audit.Entry{UserID: &user.ID, Action: models.ActionUpdate, EntityType: "Course", EntityID: &c.ID,
		Details: map[string]interface{}{"status": models.CoursePublished}})
	return s.Get(ctx, id, user.ID)
}

// Delete refuses while any enrollment references the course. Modules go with it.
func (s *Service) Delete(ctx context.Context, user models.User, id uint, ip string) error {
	c, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !c.ManagedBy(user) {
		return apierr.Forbidden("Not enough permissions")
	}
	var moduleIDs []uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Enrollment{}).Where("course_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apierr.BadRequest("Cannot delete course with existing enrollments")
		}
		if err := tx.Model(&models.Module{}).Where("course_id = ?", id).Pluck("id", &moduleIDs).Error; err != nil {
			return err
		}
		if err := modules.DeleteTree(tx, moduleIDs); err != nil {
			return err
		}
		return tx.Delete(&models.Course{}, id).Error
	})
	if err != nil {
		return err
	}
	if err := s.indexer.DeleteCourse(ctx, id); err != nil {
		s.log.Warn("remove course from index", "course_id", id, "error", err)
	}
	for _, mid := range moduleIDs {
		if err := s.indexer.DeleteModule(ctx, mid); err != nil {
			s.log.Warn("remove module from index", "module_id", mid, "error", err)
		}
	}
	s.audit.Record(ctx, audit.Entry{UserID: &user.ID, Action: models.ActionDelete, EntityType: "Course", EntityID: &id, IP: ip,
		Details: map[string]interface{}{"title": c.Title}})
	return nil
}

func (s *Service) reindex(ctx context.Context, c models.Course) {
	if err := s.indexer.IndexCourse(ctx, c); err != nil {
		s.log.Warn("index course", "course_id", c.ID, "error", err)
	}
}

type CategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
	ParentID    *uint  `json:"parent_id"`
}

func (s *Service) ListCategories(ctx context.Context, p pagination.Params) (pagination.Page[models.Category], error) {
	q := s.db.WithContext(ctx).Model(&models.Category{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return pagination.Page[models.Category]{}, err
	}
	var rows []models.Category
	if err := q.Order("name").Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return pagination.Page[models.Category]{}, err
	}
	return pagination.New(rows, total, p), nil
}

func (s *Service) CreateCategory(ctx context.Context, req CategoryRequest) (*models.Category, error) {
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.Category{}).Where("name = ?", req.Name).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, apierr.BadRequest("Category name already exists")
	}
	if req.ParentID != nil {
		if err := db.Model(&models.Category{}).Where("id = ?", *req.ParentID).Count(&n).Error; err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, apierr.BadRequest("Invalid parent category ID")
		}
	}
	cat := models.Category{Name: req.Name, Description: req.Description, ParentID: req.ParentID}
	if err := db.Create(&cat).Error; err != nil {
		if apierr.IsDuplicate(err) {
			return nil, apierr.BadRequest("Category name already exists")
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &cat, nil
}

type CountBy struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type PopularCourse struct {
	CourseID    uint   `json:"course_id"`
	Title       string `json:"title"`
	Enrollments int64  `json:"enrollments"`
}

type Stats struct {
	TotalCourses        int64           `json:"total_courses"`
	PublishedCourses    int64           `json:"published_courses"`
	DraftCourses        int64           `json:"draft_courses"`
	CoursesByCategory   []CountBy       `json:"courses_by_category"`
	CoursesByDifficulty []CountBy       `json:"courses_by_difficulty"`
	MostPopularCourses  []PopularCourse `json:"most_popular_courses"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	out := &Stats{CoursesByCategory: []CountBy{}, CoursesByDifficulty: []CountBy{}, MostPopularCourses: []PopularCourse{}}
	if err := db.Model(&models.Course{}).Count(&out.TotalCourses).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Course{}).Where("status = ?", models.CoursePublished).Count(&out.PublishedCourses).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Course{}).Where("status = ?", models.CourseDraft).Count(&out.DraftCourses).Error; err != nil {
		return nil, err
	}
	err := db.Table("categories").
		Select("categories.name AS name, COUNT(courses.id) AS count").
		Joins("JOIN courses ON courses.category_id = categories.id").
		Group("categories.name").Order("count desc").
		Scan(&out.CoursesByCategory).Error
	if err != nil {
		return nil, err
	}
	err = db.Model(&models.Course{}).
		Select("difficulty_level AS name, COUNT(*) AS count").
		Group("difficulty_level").Order("name").
		Scan(&out.CoursesByDifficulty).Error
	if err != nil {
		return nil, err
	}
	err = db.Model(&models.Course{}).
		Select("courses.id AS course_id, courses.title AS title, COUNT(enrollments.id) AS enrollments").
		Joins("LEFT JOIN enrollments ON enrollments.course_id = courses.id").
		Group("courses.id, courses.title").
		Order("enrollments desc, courses.id").
		Limit(10).
		Scan(&out.MostPopularCourses).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
