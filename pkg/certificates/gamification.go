package certificates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/models"
	"lms-backend/pkg/pagination"
)

var errBadgeNotFound = apierr.NotFound("Badge not found")

type BadgeRequest struct {
	Name        string                 `json:"name" validate:"required,max=100"`
	Description string                 `json:"description" validate:"max=255"`
	IconURL     string                 `json:"icon_url" validate:"omitempty,max=500"`
	Criteria    map[string]interface{} `json:"criteria"`
	PointsValue int                    `json:"points_value" validate:"min=0"`
	BadgeType   models.BadgeType       `json:"badge_type" validate:"omitempty,oneof=course_completion streak participation achievement"`
}

type AwardBadgeRequest struct {
	UserID uint   `json:"user_id" validate:"required"`
	Reason string `json:"reason" validate:"max=255"`
}

type PointsRequest struct {
	UserID       uint                `json:"user_id" validate:"required"`
	Points       int                 `json:"points" validate:"required,min=1"`
	PointsSource models.PointsSource `json:"points_source" validate:"required,oneof=course_completion quiz_score participation bonus"`
	SourceID     string              `json:"source_id" validate:"max=50"`
	Description  string              `json:"description" validate:"max=255"`
}

type BadgeView struct {
	models.Badge
	TotalEarned int64 `json:"total_earned"`
}

type UserBadgeView struct {
	models.UserBadge
	Badge models.Badge `json:"badge"`
}

type PointsSummary struct {
	UserID      uint                                `json:"user_id"`
	TotalPoints int64                               `json:"total_points"`
	History     pagination.Page[models.UserPoints] `json:"history"`
}

func (s *Service) userExists(db *gorm.DB, id uint) error {
	var n int64
	if err := db.Model(&models.User{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return apierr.NotFound("User not found")
	}
	return nil
}

func (s *Service) CreateBadge(ctx context.Context, actor models.User, req BadgeRequest) (*models.Badge, error) {
	criteria, err := json.Marshal(req.Criteria)
	if err != nil {
		return nil, apierr.BadRequest("Invalid criteria")
	}
	b := models.Badge{
		Name:        req.Name,
		Description: req.Description,
		IconURL:     req.IconURL,
		Criteria:    criteria,
		PointsValue: req.PointsValue,
		BadgeType:   models.BadgeAchievement,
	}
	if req.BadgeType != "" {
		b.BadgeType = req.BadgeType
	}
	if err := s.db.WithContext(ctx).Create(&b).Error; err != nil {
		if apierr.IsDuplicate(err) {
			return nil, apierr.BadRequest("Badge with this name already exists")
		}
		return nil, fmt.Errorf("create badge: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionCreate, EntityType: "Badge", EntityID: &b.ID})
	return &b, nil
}

func (s *Service) ListBadges(ctx context.Context) ([]BadgeView, error) {
	db := s.db.WithContext(ctx)
	var badges []models.Badge
	if err := db.Order("name").Find(&badges).Error; err != nil {
		return nil, err
	}
	type earned struct {
		BadgeID uint
		N       int64
	}
	var counts []earned
	if err := db.Model(&models.UserBadge{}).Select("badge_id, COUNT(*) AS n").Group("badge_id").Scan(&counts).Error; err != nil {
		return nil, err
	}
	byBadge := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byBadge[c.BadgeID] = c.N
	}
	out := make([]BadgeView, 0, len(badges))
	for _, b := range badges {
		out = append(out, BadgeView{Badge: b, TotalEarned: byBadge[b.ID]})
	}
	return out, nil
}

// AwardBadge records the badge and, when it carries a points value, the
// matching points entry in the same transaction.
func (s *Service) AwardBadge(ctx context.Context, actor models.User, badgeID uint, req AwardBadgeRequest) (*UserBadgeView, error) {
	var out UserBadgeView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b models.Badge
		if err := tx.Limit(1).Find(&b, badgeID).Error; err != nil {
			return err
		}
		if b.ID == 0 {
			return errBadgeNotFound
		}
		if err := s.userExists(tx, req.UserID); err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.UserBadge{}).Where("user_id = ? AND badge_id = ?", req.UserID, badgeID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apierr.BadRequest("User already has this badge")
		}
		now := s.now()
		ub := models.UserBadge{UserID: req.UserID, BadgeID: badgeID, EarnedAt: now, Reason: req.Reason}
		if err := tx.Create(&ub).Error; err != nil {
			return err
		}
		if b.PointsValue > 0 {
			pts := models.UserPoints{
				UserID:       req.UserID,
				Points:       b.PointsValue,
				PointsSource: models.PointsBonus,
				SourceID:     "badge:" + strconv.FormatUint(uint64(b.ID), 10),
				EarnedAt:     now,
				Description:  "Badge: " + b.Name,
			}
			if err := tx.Create(&pts).Error; err != nil {
				return err
			}
		}
		out = UserBadgeView{UserBadge: ub, Badge: b}
		return nil
	})
	if err != nil {
		if apierr.IsDuplicate(err) {
			return nil, apierr.BadRequest("User already has this badge")
		}
		var ae *apierr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, fmt.Errorf("award badge: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionCreate, EntityType: "UserBadge", EntityID: &out.ID,
		Details: map[string]interface{}{"user_id": req.UserID, "badge_id": badgeID}})
	return &out, nil
}

func (s *Service) UserBadges(ctx context.Context, userID uint) ([]UserBadgeView, error) {
	db := s.db.WithContext(ctx)
	if err := s.userExists(db, userID); err != nil {
		return nil, err
	}
	var rows []models.UserBadge
	if err := db.Where("user_id = ?", userID).Order("earned_at desc, id desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.BadgeID)
	}
	var badges []models.Badge
	if len(ids) > 0 {
		if err := db.Where("id IN ?", ids).Find(&badges).Error; err != nil {
			return nil, err
		}
	}
	byID := make(map[uint]models.Badge, len(badges))
	for _, b := range badges {
		byID[b.ID] = b
	}
	out := make([]UserBadgeView, 0, len(rows))
	for _, r := range rows {
		out = append(out, UserBadgeView{UserBadge: r, Badge: byID[r.BadgeID]})
	}
	return out, nil
}

func (s *Service) AwardPoints(ctx context.Context, actor models.User, req PointsRequest) (*models.UserPoints, error) {
	db := s.db.WithContext(ctx)
	if err := s.userExists(db, req.UserID); err != nil {
		return nil, err
	}
	p := models.UserPoints{
		UserID:       req.UserID,
		Points:       req.Points,
		PointsSource: req.PointsSource,
		SourceID:     req.SourceID,
		EarnedAt:     s.now(),
		Description:  req.Description,
	}
	if err := db.Create(&p).Error; err != nil {
		return nil, fmt.Errorf("award points: %w", err)
	}
	s.audit.Record(ctx, audit.Entry{UserID: &actor.ID, Action: models.ActionCreate, EntityType: "UserPoints", EntityID: &p.ID,
		Details: map[string]interface{}{"user_id": p.UserID, "points": p.Points, "source": p.PointsSource}})
	return &p, nil
}

// Points returns the user's total and a page of the ledger, newest first.
func (s *Service) Points(ctx context.Context, userID uint, p pagination.Params) (*PointsSummary, error) {
	db := s.db.WithContext(ctx)
	if err := s.userExists(db, userID); err != nil {
		return nil, err
	}
	out := &PointsSummary{UserID: userID}
	q := db.Model(&models.UserPoints{}).Where("user_id = ?", userID)
	if err := q.Select("COALESCE(SUM(points), 0)").Scan(&out.TotalPoints).Error; err != nil {
		return nil, err
	}
	var total int64
	if err := db.Model(&models.UserPoints{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, err
	}
	rows := []models.UserPoints{}
	if err := db.Where("user_id = ?", userID).Order("earned_at desc, id desc").Offset(p.Offset()).Limit(p.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out.History = pagination.New(rows, total, p)
	return out, nil
}
