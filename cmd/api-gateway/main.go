package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/colegio-adp-api/api/swagger"
	"github.com/noah-isme/colegio-adp-api/internal/handler"
	"github.com/noah-isme/colegio-adp-api/internal/middleware"
	"github.com/noah-isme/colegio-adp-api/internal/models"
	"github.com/noah-isme/colegio-adp-api/internal/repository"
	"github.com/noah-isme/colegio-adp-api/internal/service"
	"github.com/noah-isme/colegio-adp-api/pkg/cache"
	"github.com/noah-isme/colegio-adp-api/pkg/config"
	"github.com/noah-isme/colegio-adp-api/pkg/database"
	"github.com/noah-isme/colegio-adp-api/pkg/logger"
	"github.com/noah-isme/colegio-adp-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/colegio-adp-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/colegio-adp-api/pkg/middleware/requestid"
	"github.com/noah-isme/colegio-adp-api/pkg/storage"
)

// @title Colegio ADP API
// @version 1.0.0
// @description School administration API: roster browsing, period lifecycle, enrollments and grades
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	mail := mailer.NewSendgridMailer(cfg.Mail, logr)

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	periodRepo := repository.NewPeriodRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	reportRepo := repository.NewReportRepository(db)
	codeRepo := repository.NewVerificationCodeRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "colegio-adp-api",
	})
	studentSvc := service.NewStudentService(studentRepo, nil, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, nil, logr)
	sectionSvc := service.NewSectionService(sectionRepo, teacherRepo, nil, logr)
	periodSvc := service.NewPeriodService(periodRepo, codeRepo, mail, nil, logr, cfg.Verification.CodeTTL)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, sectionRepo, periodRepo, nil, logr)
	gradeSvc := service.NewGradeService(gradeRepo, periodRepo, nil, logr)
	rosterSvc := service.NewRosterService(studentRepo, sectionRepo, enrollmentRepo, periodRepo, logr, cfg.Roster.PageSize, cfg.Roster.SearchDebounce)
	notificationSvc := service.NewNotificationService(mail, metricsSvc, nil, logr, cfg.Mail.ContactAddress)
	reportSvc := service.NewReportService(reportRepo, studentRepo, gradeRepo, periodRepo, files, signer, metricsSvc, nil, logr, service.ReportQueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reportSvc.Start(ctx)
	defer reportSvc.Stop()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc)
	periodHandler := handler.NewPeriodHandler(periodSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	rosterHandler := handler.NewRosterHandler(rosterSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.POST("/contact", notificationHandler.Contact)
	api.GET("/reports/download", reportHandler.Download)

	auth := api.Group("", middleware.JWT(authSvc))
	auth.POST("/auth/logout", authHandler.Logout)
	auth.POST("/auth/change-password", authHandler.ChangePassword)
	auth.GET("/auth/me", authHandler.Me)

	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleDocente)

	auth.GET("/students", studentHandler.List)
	auth.GET("/students/:id", studentHandler.Get)
	auth.POST("/students", admin, studentHandler.Create)
	auth.PUT("/students/:id", admin, studentHandler.Update)
	auth.POST("/students/:id/retire", admin, studentHandler.Retire)

	auth.GET("/teachers", teacherHandler.List)
	auth.GET("/teachers/:id", teacherHandler.Get)
	auth.POST("/teachers", admin, teacherHandler.Create)
	auth.PUT("/teachers/:id", admin, teacherHandler.Update)
	auth.DELETE("/teachers/:id", admin, teacherHandler.Deactivate)

	auth.GET("/sections", sectionHandler.List)
	auth.GET("/sections/:id", sectionHandler.Get)
	auth.POST("/sections", admin, sectionHandler.Create)
	auth.PUT("/sections/:id", admin, sectionHandler.Update)
	auth.DELETE("/sections/:id", admin, sectionHandler.Delete)

	auth.GET("/periods", periodHandler.List)
	auth.GET("/periods/active", periodHandler.GetActive)
	auth.GET("/periods/:id", periodHandler.Get)
	auth.POST("/periods", admin, periodHandler.Create)
	auth.POST("/periods/:id/deactivation-code", admin, periodHandler.RequestDeactivationCode)
	auth.POST("/periods/:id/deactivate", admin, periodHandler.Deactivate)
	auth.GET("/periods/:id/lapses", periodHandler.ListLapses)
	auth.POST("/periods/:id/lapses", admin, periodHandler.CreateLapse)
	auth.PUT("/lapses/:lapseId/status", admin, periodHandler.SetLapseStatus)

	auth.GET("/enrollments", enrollmentHandler.List)
	auth.GET("/enrollments/:id", enrollmentHandler.Get)
	auth.POST("/enrollments", admin, enrollmentHandler.Enroll)
	auth.POST("/enrollments/:id/withdraw", admin, enrollmentHandler.Withdraw)

	auth.GET("/grades", gradeHandler.List)
	auth.POST("/grades", staff, gradeHandler.Record)
	auth.DELETE("/grades/:id", staff, gradeHandler.Delete)

	auth.GET("/roster/:collection", rosterHandler.Page)
	auth.GET("/roster/:collection/search", rosterHandler.Search)
	auth.DELETE("/roster/:collection", rosterHandler.Reset)

	auth.GET("/reports", reportHandler.List)
	auth.GET("/reports/:id", reportHandler.Status)
	auth.POST("/reports", admin, reportHandler.Request)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
