package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"lms-backend/pkg/analytics"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/certificates"
	"lms-backend/pkg/courses"
	"lms-backend/pkg/documents"
	"lms-backend/pkg/enrollments"
	"lms-backend/pkg/goauth"
	"lms-backend/pkg/middleware"
	"lms-backend/pkg/models"
	"lms-backend/pkg/modules"
	"lms-backend/pkg/notifications"
	"lms-backend/pkg/progress"
	"lms-backend/pkg/quizzes"
	"lms-backend/pkg/reviews"
	"lms-backend/pkg/search"
	"lms-backend/pkg/users"
	"lms-backend/pkg/webinars"
)

// Handlers is everything the router mounts.
type Handlers struct {
	Auth          *goauth.Handler
	Users         *users.Handler
	Courses       *courses.Handler
	Modules       *modules.Handler
	Enrollments   *enrollments.Handler
	Progress      *progress.Handler
	Quizzes       *quizzes.Handler
	Certificates  *certificates.Handler
	Documents     *documents.Handler
	Search        *search.Handler
	Notifications *notifications.Handler
	Hub           *notifications.Hub
	Webinars      *webinars.Handler
	Analytics     *analytics.Handler
	Reviews       *reviews.Handler
	Audit         *audit.Handler
}

var (
	staff   = []models.Role{models.RoleAdmin, models.RoleHR}
	authors = []models.Role{models.RoleAdmin, models.RoleHR, models.RoleResourcePersonnel}
	admins  = []models.Role{models.RoleAdmin}
)

func only(roles []models.Role, fn http.HandlerFunc) http.Handler {
	return middleware.RequireRole(roles...)(fn)
}

// Setup mounts the public routes on api and everything else behind auth.
func Setup(api *mux.Router, auth *middleware.Auth, h Handlers) {
	SetupPublic(api, h)

	private := api.NewRoute().Subrouter()
	private.Use(auth.AuthMiddleware)
	SetupMe(private, h.Auth)
	SetupUsers(private, h.Users)
	SetupCourses(private, h)
	SetupModules(private, h)
	SetupEnrollments(private, h.Enrollments)
	SetupProgress(private, h.Progress)
	SetupQuizzes(private, h.Quizzes)
	SetupCertificates(private, h.Certificates)
	SetupNotifications(private, h.Notifications, h.Hub)
	SetupWebinars(private, h.Webinars)
	SetupAnalytics(private, h.Analytics)
	SetupReviews(private, h.Reviews)
	SetupAudit(private, h.Audit)
}

func SetupPublic(r *mux.Router, h Handlers) {
	r.HandleFunc("/auth/register", h.Auth.Register).Methods("POST")
	r.HandleFunc("/auth/login", h.Auth.Login).Methods("POST")
	r.HandleFunc("/auth/refresh", h.Auth.Refresh).Methods("POST")
	r.HandleFunc("/auth/forgot-password", h.Auth.ForgotPassword).Methods("POST")
	r.HandleFunc("/auth/reset-password", h.Auth.ResetPassword).Methods("POST")
	r.HandleFunc("/auth/verify-email", h.Auth.VerifyEmail).Methods("GET", "POST")
	r.HandleFunc("/certificates/verify/{code}", h.Certificates.VerifyCertificate).Methods("GET")
}

func SetupMe(r *mux.Router, h *goauth.Handler) {
	r.HandleFunc("/auth/logout", h.Logout).Methods("POST")
	r.HandleFunc("/auth/change-password", h.ChangePassword).Methods("POST")
	r.HandleFunc("/auth/me", h.Me).Methods("GET")
	r.HandleFunc("/auth/me", h.UpdateMe).Methods("PUT")
}

func SetupUsers(r *mux.Router, h *users.Handler) {
	r.Handle("/users", only(staff, h.GetUsers)).Methods("GET")
	r.Handle("/users", only(admins, h.CreateUser)).Methods("POST")
	r.Handle("/users/stats", only(staff, h.GetStats)).Methods("GET")
	r.HandleFunc("/users/{id:[0-9]+}", h.GetUser).Methods("GET")
	r.Handle("/users/{id:[0-9]+}", only(admins, h.UpdateUser)).Methods("PUT")
	r.Handle("/users/{id:[0-9]+}", only(admins, h.DeactivateUser)).Methods("DELETE")
}

func SetupCourses(r *mux.Router, h Handlers) {
	c := h.Courses
	r.HandleFunc("/courses", c.GetAll).Methods("GET")
	r.Handle("/courses", only(authors, c.Create)).Methods("POST")
	r.Handle("/courses/my-courses", only(authors, c.MyCourses)).Methods("GET")
	r.Handle("/courses/stats", only(staff, c.Stats)).Methods("GET")
	r.HandleFunc("/courses/categories", c.GetCategories).Methods("GET")
	r.Handle("/courses/categories", only(staff, c.CreateCategory)).Methods("POST")
	r.HandleFunc("/courses/{id:[0-9]+}", c.GetByID).Methods("GET")
	r.Handle("/courses/{id:[0-9]+}", only(authors, c.Update)).Methods("PUT")
	r.Handle("/courses/{id:[0-9]+}", only(authors, c.Delete)).Methods("DELETE")
	r.Handle("/courses/{id:[0-9]+}/publish", only(authors, c.Publish)).Methods("POST")

	r.HandleFunc("/search/courses", h.Search.Courses).Methods("GET")
	r.HandleFunc("/search/courses/{course_id:[0-9]+}/modules", h.Search.Modules).Methods("GET")
}

func SetupModules(r *mux.Router, h Handlers) {
	m := h.Modules
	r.HandleFunc("/courses/{course_id:[0-9]+}/modules", m.GetModules).Methods("GET")
	r.Handle("/courses/{course_id:[0-9]+}/modules", only(authors, m.CreateModule)).Methods("POST")
	r.Handle("/courses/{course_id:[0-9]+}/modules/reorder", only(authors, m.ReorderModules)).Methods("PUT")
	r.HandleFunc("/modules/{id:[0-9]+}", m.GetModule).Methods("GET")
	r.Handle("/modules/{id:[0-9]+}", only(authors, m.UpdateModule)).Methods("PUT")
	r.Handle("/modules/{id:[0-9]+}", only(authors, m.DeleteModule)).Methods("DELETE")

	d := h.Documents
	r.HandleFunc("/modules/{module_id:[0-9]+}/files", d.ModuleDocs).Methods("GET")
	r.Handle("/files/upload/{file_type}", only(authors, d.UploadDoc)).Methods("POST")
	r.HandleFunc("/files/{file_id}", d.DownloadDoc).Methods("GET")
	r.Handle("/files/{file_id}", only(authors, d.DeleteDoc)).Methods("DELETE")
}

func SetupEnrollments(r *mux.Router, h *enrollments.Handler) {
	r.HandleFunc("/courses/{course_id:[0-9]+}/enroll", h.EnrollMe).Methods("POST")
	r.HandleFunc("/enrollments", h.List).Methods("GET")
	r.Handle("/enrollments", only(staff, h.Enroll)).Methods("POST")
	r.Handle("/enrollments/bulk", only(staff, h.BulkEnroll)).Methods("POST")
	r.HandleFunc("/enrollments/{id:[0-9]+}", h.Get).Methods("GET")
	r.Handle("/enrollments/{id:[0-9]+}", only(staff, h.Update)).Methods("PUT")
	r.Handle("/enrollments/{id:[0-9]+}/drop", only(staff, h.Drop)).Methods("POST")
}

func SetupProgress(r *mux.Router, h *progress.Handler) {
	r.HandleFunc("/progress/content", h.RecordContent).Methods("POST")
	r.HandleFunc("/progress/me", h.MyProgress).Methods("GET")
	r.HandleFunc("/progress/me/courses/{course_id:[0-9]+}", h.MyCourseProgress).Methods("GET")
	r.HandleFunc("/progress/users/{user_id:[0-9]+}", h.UserProgress).Methods("GET")
	r.HandleFunc("/progress/users/{user_id:[0-9]+}/courses/{course_id:[0-9]+}", h.UserCourseProgress).Methods("GET")
	r.HandleFunc("/progress/modules/{module_id:[0-9]+}/content", h.ModuleContent).Methods("GET")
}

func SetupQuizzes(r *mux.Router, h *quizzes.Handler) {
	r.HandleFunc("/quizzes", h.GetQuizzes).Methods("GET")
	r.Handle("/quizzes", only(authors, h.CreateQuiz)).Methods("POST")
	r.HandleFunc("/quizzes/attempts/{attempt_id:[0-9]+}", h.GetAttempt).Methods("GET")
	r.Handle("/quizzes/questions/{question_id:[0-9]+}", only(authors, h.UpdateQuestion)).Methods("PUT")
	r.Handle("/quizzes/questions/{question_id:[0-9]+}", only(authors, h.DeleteQuestion)).Methods("DELETE")
	r.HandleFunc("/quizzes/{id:[0-9]+}", h.GetQuiz).Methods("GET")
	r.Handle("/quizzes/{id:[0-9]+}", only(authors, h.UpdateQuiz)).Methods("PUT")
	r.Handle("/quizzes/{id:[0-9]+}", only(authors, h.DeleteQuiz)).Methods("DELETE")
	r.Handle("/quizzes/{id:[0-9]+}/questions", only(authors, h.AddQuestion)).Methods("POST")
	r.HandleFunc("/quizzes/{id:[0-9]+}/submit", h.Submit).Methods("POST")
	r.HandleFunc("/quizzes/{id:[0-9]+}/attempts", h.GetAttempts).Methods("GET")
}

func SetupCertificates(r *mux.Router, h *certificates.Handler) {
	r.HandleFunc("/certificates", h.GetCertificates).Methods("GET")
	r.Handle("/certificates", only(staff, h.CreateCertificate)).Methods("POST")
	r.HandleFunc("/certificates/users/{user_id:[0-9]+}", h.UserCertificates).Methods("GET")
	r.Handle("/certificates/courses/{course_id:[0-9]+}", only(authors, h.CourseCertificates)).Methods("GET")
	r.HandleFunc("/certificates/{id:[0-9]+}", h.GetCertificate).Methods("GET")
	r.Handle("/certificates/{id:[0-9]+}", only(staff, h.UpdateCertificate)).Methods("PUT")
	r.Handle("/certificates/{id:[0-9]+}", only(staff, h.DeleteCertificate)).Methods("DELETE")

	r.HandleFunc("/badges", h.GetBadges).Methods("GET")
	r.Handle("/badges", only(staff, h.CreateBadge)).Methods("POST")
	r.Handle("/badges/{id:[0-9]+}/award", only(staff, h.AwardBadge)).Methods("POST")
	r.HandleFunc("/badges/users/{user_id:[0-9]+}", h.UserBadges).Methods("GET")
	r.Handle("/points", only(staff, h.AwardPoints)).Methods("POST")
	r.HandleFunc("/points/users/{user_id:[0-9]+}", h.UserPoints).Methods("GET")
}

func SetupNotifications(r *mux.Router, h *notifications.Handler, hub *notifications.Hub) {
	r.HandleFunc("/notifications/ws", hub.ServeWS).Methods("GET")
	r.HandleFunc("/notifications", h.GetNotifications).Methods("GET")
	r.Handle("/notifications", only(staff, h.CreateNotification)).Methods("POST")
	r.HandleFunc("/notifications/unread-count", h.UnreadCount).Methods("GET")
	r.HandleFunc("/notifications/read-all", h.MarkAllRead).Methods("PUT")
	r.HandleFunc("/notifications/{id:[0-9]+}", h.GetNotification).Methods("GET")
	r.HandleFunc("/notifications/{id:[0-9]+}", h.DeleteNotification).Methods("DELETE")
	r.HandleFunc("/notifications/{id:[0-9]+}/read", h.MarkRead).Methods("PUT")
}

func SetupWebinars(r *mux.Router, h *webinars.Handler) {
	r.HandleFunc("/webinars", h.GetWebinars).Methods("GET")
	r.Handle("/webinars", only(authors, h.CreateWebinar)).Methods("POST")
	r.HandleFunc("/webinars/{id:[0-9]+}", h.GetWebinar).Methods("GET")
	r.Handle("/webinars/{id:[0-9]+}", only(authors, h.UpdateWebinar)).Methods("PUT")
	r.Handle("/webinars/{id:[0-9]+}", only(authors, h.DeleteWebinar)).Methods("DELETE")
	r.HandleFunc("/webinars/{id:[0-9]+}/register", h.Register).Methods("POST")
	r.HandleFunc("/webinars/{id:[0-9]+}/register", h.Unregister).Methods("DELETE")
	r.Handle("/webinars/{id:[0-9]+}/registrations", only(authors, h.Registrations)).Methods("GET")
}

func SetupAnalytics(r *mux.Router, h *analytics.Handler) {
	r.HandleFunc("/analytics/learning-events", h.RecordEvent).Methods("POST")
	r.Handle("/analytics/dashboard-metrics", only(staff, h.DashboardMetrics)).Methods("GET")
	r.HandleFunc("/analytics/users/{user_id:[0-9]+}", h.UserAnalytics).Methods("GET")
	r.Handle("/analytics/courses/{course_id:[0-9]+}", only(authors, h.CourseAnalytics)).Methods("GET")
}

func SetupReviews(r *mux.Router, h *reviews.Handler) {
	r.Handle("/reviews", only(authors, h.GetReviews)).Methods("GET")
	r.Handle("/reviews", only(authors, h.CreateReview)).Methods("POST")
	r.Handle("/reviews/stats", only(staff, h.GetStats)).Methods("GET")
	r.Handle("/reviews/my-submissions", only(authors, h.MySubmissions)).Methods("GET")
	r.Handle("/reviews/my-reviews", only(authors, h.MyReviews)).Methods("GET")
	r.Handle("/reviews/bulk-action", only(authors, h.BulkAction)).Methods("POST")
	r.Handle("/reviews/{id:[0-9]+}", only(authors, h.GetReview)).Methods("GET")
	r.Handle("/reviews/{id:[0-9]+}", only(authors, h.UpdateReview)).Methods("PUT")
	r.Handle("/reviews/{id:[0-9]+}", only(authors, h.DeleteReview)).Methods("DELETE")
	r.Handle("/reviews/{id:[0-9]+}/assign", only(staff, h.AssignReview)).Methods("PUT")
}

func SetupAudit(r *mux.Router, h *audit.Handler) {
	r.Handle("/audit/logs", only(admins, h.GetLogs)).Methods("GET")
	r.Handle("/audit/logs/{id:[0-9]+}", only(admins, h.GetLog)).Methods("GET")
	r.Handle("/audit/summary", only(admins, h.GetSummary)).Methods("GET")
}
