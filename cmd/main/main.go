package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/multierr"

	"lms-backend/pkg/analytics"
	"lms-backend/pkg/apierr"
	"lms-backend/pkg/audit"
	"lms-backend/pkg/certificates"
	"lms-backend/pkg/config"
	"lms-backend/pkg/courses"
	"lms-backend/pkg/documents"
	"lms-backend/pkg/email"
	"lms-backend/pkg/enrollments"
	"lms-backend/pkg/goauth"
	"lms-backend/pkg/initial"
	"lms-backend/pkg/kfka"
	"lms-backend/pkg/logger"
	"lms-backend/pkg/middleware"
	"lms-backend/pkg/modules"
	"lms-backend/pkg/notifications"
	"lms-backend/pkg/progress"
	"lms-backend/pkg/quizzes"
	"lms-backend/pkg/reviews"
	"lms-backend/pkg/routes"
	"lms-backend/pkg/scheduler"
	"lms-backend/pkg/search"
	"lms-backend/pkg/token"
	"lms-backend/pkg/users"
	"lms-backend/pkg/webinars"
)

const shutdownTimeout = 15 * time.Second

// searchBackend is what ES and Nop both provide.
type searchBackend interface {
	search.Indexer
	search.Searcher
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer lg.Sync()

	db, err := initial.ConDB(cfg)
	if err != nil {
		lg.Fatal("connect database", "error", err)
	}
	if err := initial.SyncDB(db); err != nil {
		lg.Fatal("migrate database", "error", err)
	}
	rdb := initial.InitRedis(cfg)

	var idx searchBackend = search.Nop{}
	if cfg.SearchEnabled() {
		es, err := initial.InitES(cfg)
		if err != nil {
			lg.Fatal("init elasticsearch", "error", err)
		}
		idx = search.NewES(es)
	} else {
		lg.Warn("ES not set, search falls back to the database")
	}

	mc, err := initial.InitMinio(cfg)
	if err != nil {
		lg.Fatal("init minio", "error", err)
	}
	store := documents.NewMinioStore(mc, cfg.MinioBucket)
	bucketCtx, cancelBucket := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsureBucket(bucketCtx); err != nil {
		lg.Warn("minio bucket unavailable, uploads will fail", "bucket", cfg.MinioBucket, "error", err)
	}
	cancelBucket()

	rec := audit.NewService(db, lg)
	tokens := token.NewTokenManager(cfg)
	mailer := email.NewMailer(cfg, lg)
	hub := notifications.NewHub(lg)
	notifySvc := notifications.NewService(db, hub, rec, lg)
	dispatcher := notifications.NewDispatcher(notifySvc, mailer, cfg.BaseURL, lg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		events   kfka.Publisher = kfka.Direct{Handler: dispatcher}
		producer *kfka.Producer
		consumer *kfka.Consumer
	)
	if cfg.EventsEnabled() {
		producer = kfka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		consumer = kfka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, dispatcher, lg)
		events = producer
		go consumer.Run(ctx)
	} else {
		lg.Warn("KAFKA_BROKERS empty, events are dispatched in-process")
	}

	courseSvc := courses.NewService(db, idx, rec, lg)
	h := routes.Handlers{
		Auth:          goauth.NewHandler(goauth.NewService(cfg, db, tokens, goauth.NewRedisCodes(rdb), mailer, rec, lg), lg),
		Users:         users.NewHandler(users.NewService(db, rec, lg), lg),
		Courses:       courses.NewHandler(courseSvc, lg),
		Modules:       modules.NewHandler(modules.NewService(db, idx, events, rec, lg), lg),
		Enrollments:   enrollments.NewHandler(enrollments.NewService(db, events, rec, lg), lg),
		Progress:      progress.NewHandler(progress.NewService(db, events, lg), lg),
		Quizzes:       quizzes.NewHandler(quizzes.NewService(db, events, rec, lg), lg),
		Certificates:  certificates.NewHandler(certificates.NewService(db, rec, lg), lg),
		Documents:     documents.NewHandler(documents.NewService(db, store, cfg.UploadDir, cfg.MaxFileSize, rec, lg), lg),
		Search:        search.NewHandler(idx, lg),
		Notifications: notifications.NewHandler(notifySvc, lg),
		Hub:           hub,
		Webinars:      webinars.NewHandler(webinars.NewService(db, rec, lg), lg),
		Analytics:     analytics.NewHandler(analytics.NewService(db, lg), lg),
		Reviews:       reviews.NewHandler(reviews.NewService(db, rec, lg), lg),
		Audit:         audit.NewHandler(rec, lg),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		apierr.JSON(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"app_name":  cfg.AppName,
			"version":   cfg.Version,
			"timestamp": time.Now().UTC(),
		})
	}).Methods("GET")
	routes.Setup(r.PathPrefix(cfg.APIV1).Subrouter(), middleware.NewAuth(tokens, db), h)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.Recover(lg)(middleware.Logging(lg)(c.Handler(r))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched := scheduler.New(db, events, lg)
	if err := sched.Start(cfg.ReminderSchedule, cfg.WebinarSchedule); err != nil {
		lg.Fatal("start scheduler", "error", err)
	}

	go func() {
		lg.Info("server started", "addr", srv.Addr, "env", cfg.Env, "version", cfg.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	sched.Stop()
	hub.Close()
	if producer != nil {
		err = multierr.Append(err, producer.Close())
	}
	if consumer != nil {
		err = multierr.Append(err, consumer.Close())
	}
	err = multierr.Append(err, rdb.Close())
	if sqlDB, dbErr := db.DB(); dbErr == nil {
		err = multierr.Append(err, sqlDB.Close())
	}
	if err != nil {
		lg.Error("shutdown", "error", err)
		return
	}
	lg.Info("stopped")
}
