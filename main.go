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

	"testflow_backend/catalog"
	"testflow_backend/config"
	"testflow_backend/db"
	"testflow_backend/middleware"
	"testflow_backend/models"
	"testflow_backend/notify"
	"testflow_backend/report"
	"testflow_backend/routes"
	"testflow_backend/session"
	"testflow_backend/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	envLoaded := config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer logger.Sync()
	if !envLoaded {
		logger.Warn(".env file not found") // Non-fatal in production
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	loc, err := time.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		logger.Warn("unknown report timezone, using UTC", zap.String("timezone", cfg.ReportTimezone))
		loc = time.UTC
	}

	dispatcher := notify.NewDispatcher(
		notify.NewSMTPTransport(cfg.SMTP),
		st,
		notify.RejectionRecipient(cfg.RejectionRecipient, cfg.RejectionEmail),
		notify.ReportRecipient(cfg.ReportRecipient, cfg.ReportEmail),
		logger,
	)
	instructions := catalog.New(st, logger)
	questionnaire := catalog.NewQuestionnaire(st, logger)
	recorder := session.NewRecorder(st, dispatcher, logger)
	var font []byte
	if cfg.ReportFontFile != "" {
		if font, err = report.LoadFont(cfg.ReportFontFile); err != nil {
			logger.Fatal("failed to load report font", zap.Error(err))
		}
	}
	compiler := report.NewCompiler(st, report.Options{
		Packaging: report.Packaging(cfg.ReportPackaging),
		Location:  loc,
		Font:      font,
	}, logger)
	reports := report.NewService(compiler, st, dispatcher, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))

	// Setup CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
		middleware.RequestIDHeader,
	}
	corsConfig.AllowMethods = []string{
		"GET",
		"POST",
		"PUT",
		"DELETE",
	}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", middleware.RequestIDHeader}
	r.Use(cors.New(corsConfig))

	routes.SetupRoutes(r, routes.Dependencies{
		Store:         st,
		Catalog:       instructions,
		Questionnaire: questionnaire,
		Recorder:      recorder,
		Machine:       session.NewMachine(instructions, questionnaire, recorder, reports, logger),
		Reports:       reports,
		JWTSecret:     []byte(cfg.JWTSecret),
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
}

// openStore returns the Postgres store with schema and seed applied, or the
// in-memory store with a seeded admin when DB_DRIVER=memory.
func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.DBDriver == config.DriverMemory {
		hash, err := middleware.HashPassword(cfg.AdminPassword)
		if err != nil {
			return nil, err
		}
		m := store.NewMemory()
		m.SeedUser(cfg.AdminUsername, hash, cfg.AdminEmail)
		_, err = m.UpdateSettings(context.Background(), defaultSettings(cfg))
		if err != nil {
			return nil, err
		}
		logger.Warn("using in-memory store, data is lost on restart")
		return m, nil
	}

	database, err := db.Initialize(db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(database); err != nil {
		database.Close()
		return nil, err
	}
	s := defaultSettings(cfg)
	err = db.SeedData(database, db.SeedOptions{
		AdminUsername:  cfg.AdminUsername,
		AdminPassword:  cfg.AdminPassword,
		AdminEmail:     cfg.AdminEmail,
		ReportEmail:    s.ReportEmail,
		RejectionEmail: s.RejectionEmail,
	})
	if err != nil {
		logger.Warn("error seeding initial data", zap.Error(err))
	}
	return store.NewPostgres(database), nil
}

// defaultSettings falls back to the admin address for any notification
// address left unset.
func defaultSettings(cfg *config.Config) models.Settings {
	s := models.Settings{ReportEmail: cfg.ReportEmail, RejectionEmail: cfg.RejectionEmail}
	if s.ReportEmail == "" {
		s.ReportEmail = cfg.AdminEmail
	}
	if s.RejectionEmail == "" {
		s.RejectionEmail = cfg.AdminEmail
	}
	return s
}
