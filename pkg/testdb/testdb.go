// Package testdb opens a migrated in-memory SQLite database for package tests.
package testdb

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"lms-backend/pkg/initial"
	"lms-backend/pkg/models"
)

func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), initial.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := initial.SyncDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// User inserts an active user with password "Secret123".
func User(t testing.TB, db *gorm.DB, username string, role models.Role) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("Secret123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := models.User{
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: string(hash),
		FirstName:    username,
		Role:         role,
		IsActive:     true,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func Course(t testing.TB, db *gorm.DB, creator uint, title string) models.Course {
	t.Helper()
	c := models.Course{Title: title, CreatorID: creator, Status: models.CourseDraft, DifficultyLevel: models.Beginner}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("create course: %v", err)
	}
	return c
}

func Module(t testing.TB, db *gorm.DB, courseID uint, title string, ct models.ContentType, order int) models.Module {
	t.Helper()
	m := models.Module{CourseID: courseID, Title: title, ContentType: ct, OrderIndex: order}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("create module: %v", err)
	}
	return m
}

func Enroll(t testing.TB, db *gorm.DB, userID, courseID uint) models.Enrollment {
	t.Helper()
	e := models.Enrollment{UserID: userID, CourseID: courseID, EnrolledAt: time.Now(), Status: models.EnrollmentEnrolled}
	if err := db.Create(&e).Error; err != nil {
		t.Fatalf("create enrollment: %v", err)
	}
	return e
}
