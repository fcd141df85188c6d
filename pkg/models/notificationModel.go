package models

import "time"

type NotificationType string

const (
	NotifyAssignment   NotificationType = "assignment"
	NotifyReminder     NotificationType = "reminder"
	NotifyAchievement  NotificationType = "achievement"
	NotifyAnnouncement NotificationType = "announcement"
	NotifyWebinar      NotificationType = "webinar"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

type Notification struct {
	Base
	UserID           uint                 `gorm:"index;not null" json:"user_id"`
	Title            string               `gorm:"size:200;not null" json:"title"`
	Message          string               `gorm:"not null" json:"message"`
	NotificationType NotificationType     `gorm:"type:notification_type;not null" json:"notification_type"`
	Priority         NotificationPriority `gorm:"type:notification_priority;default:'medium'" json:"priority"`
	IsRead           bool                 `gorm:"not null;index" json:"is_read"`
	ActionURL        string               `gorm:"size:500" json:"action_url"`
	ScheduledFor     *time.Time           `json:"scheduled_for"`
	SentAt           *time.Time           `json:"sent_at"`
}

type WebinarStatus string

const (
	WebinarScheduled WebinarStatus = "scheduled"
	WebinarLive      WebinarStatus = "live"
	WebinarCompleted WebinarStatus = "completed"
	WebinarCancelled WebinarStatus = "cancelled"
)

type Webinar struct {
	Base
	Title           string        `gorm:"size:200;not null" json:"title"`
	Description     string        `json:"description"`
	PresenterID     *uint         `gorm:"index" json:"presenter_id"`
	ScheduledAt     time.Time     `gorm:"index;not null" json:"scheduled_at"`
	Duration        int           `gorm:"not null" json:"duration"`
	MeetingURL      string        `gorm:"size:500" json:"meeting_url"`
	MeetingID       string        `gorm:"size:100" json:"meeting_id"`
	MaxParticipants *int          `json:"max_participants"`
	Status          WebinarStatus `gorm:"type:webinar_status;default:'scheduled'" json:"status"`
	RecordingURL    string        `gorm:"size:500" json:"recording_url"`
	IsRecorded      bool          `gorm:"not null" json:"is_recorded"`
}

type WebinarRegistration struct {
	Base
	WebinarID    uint       `gorm:"uniqueIndex:idx_webinar_registration_pair;not null" json:"webinar_id"`
	UserID       uint       `gorm:"uniqueIndex:idx_webinar_registration_pair;index;not null" json:"user_id"`
	RegisteredAt time.Time  `json:"registered_at"`
	Attended     bool       `gorm:"not null" json:"attended"`
	RemindedAt   *time.Time `json:"reminded_at"`
}
