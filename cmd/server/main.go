package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"    // .env loader for local development
	"github.com/labstack/echo/v4" // Echo web framework
	"github.com/robfig/cron/v3"   // background job scheduling

	"github.com/dhruvindave007/janmitra/internal/config"
	"github.com/dhruvindave007/janmitra/internal/database"
	"github.com/dhruvindave007/janmitra/internal/escalation"
	"github.com/dhruvindave007/janmitra/internal/handler"
	"github.com/dhruvindave007/janmitra/internal/location"
	"github.com/dhruvindave007/janmitra/internal/middleware"
	"github.com/dhruvindave007/janmitra/internal/queue"
	"github.com/dhruvindave007/janmitra/internal/repository"
	"github.com/dhruvindave007/janmitra/internal/router"
	queue_publisher "github.com/dhruvindave007/janmitra/internal/service"
)

func main() {
	// Load .env when present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer func() { _ = db.Close() }()

	// Repositories.
	users := repository.NewUserRepo(db)
	sessions := repository.NewSessionRepo(db)
	tokens := repository.NewTokenRepo(db)
	invites := repository.NewInviteRepo(db)
	incidents := repository.NewIncidentRepo(db)
	cases := repository.NewCaseRepo(db)
	audit := repository.NewAuditRepo(db)
	notifications := repository.NewNotificationRepo(db)

	// Redis-backed rate limiting on the auth surface.  A missing Redis
	// degrades to a pass-through limiter.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting disabled")
	}
	rateLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	// Background consumer turning case events into citizen notifications.
	go func() {
		if err := queue.StartCaseEventConsumer(notifications); err != nil {
			log.Printf("case-consumer stopped: %v", err)
		}
	}()

	// SLA auto-escalation sweep.
	sweeper := escalation.NewSweeper(cases, 200)
	sweeper.OnEscalated = func(ctx context.Context, caseID uint64) {
		cs, err := cases.GetByID(ctx, caseID)
		if err != nil {
			return
		}
		inc, err := incidents.GetByID(ctx, cs.IncidentID)
		if err != nil {
			return
		}
		if aerr := audit.Insert(ctx, repository.AuditEvent{
			EventType: repository.AuditCaseEscalated,
			Severity:  repository.SeverityWarning,
			TargetID:  &caseID,
			Detail:    "sla deadline exceeded",
		}); aerr != nil {
			log.Printf("[audit] insert %s failed: %v", repository.AuditCaseEscalated, aerr)
		}
		_ = queue_publisher.PublishCaseEvent(ctx, queue.CaseEvent{
			Type: queue.EventCaseEscalated, CaseID: cs.ID, IncidentID: inc.ID,
			SubmittedBy: inc.SubmittedBy, Level: int(cs.CurrentLevel),
			Status: string(cs.Status), OccurredAt: time.Now().UTC(),
		})
	}
	if cfg.SweepEnabled {
		cr, err := sweeper.Start(cfg.SweepInterval)
		if err != nil {
			log.Fatalf("escalation: %v", err)
		}
		defer cr.Stop()
	} else {
		log.Println("sla sweep disabled by configuration")
	}

	// Nightly maintenance: trim refresh tokens long past their expiry.
	maint := cron.New()
	if _, err := maint.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := tokens.DeleteExpired(ctx, 30*24*time.Hour)
		if err != nil {
			log.Printf("token cleanup failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("token cleanup removed %d rows", n)
		}
	}); err != nil {
		log.Fatalf("maintenance: %v", err)
	}
	maint.Start()
	defer maint.Stop()

	// Handlers.
	authH := handler.NewAuthHandler(cfg, db, users, sessions, tokens, invites, audit)
	citizenH := handler.NewCitizenHandler(incidents, notifications, audit, location.NewResolver())
	caseH := handler.NewCaseHandler(cases, incidents, audit)
	adminH := handler.NewAdminHandler(cfg.BcryptCost, users, sessions, invites, cases, incidents, audit)

	deps := router.Deps{JWTSecret: cfg.JWTSecret, Users: users, Sessions: sessions, Audit: audit}

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, deps, rateLimit)
	router.RegisterCitizen(e, citizenH, deps)
	router.RegisterCases(e, caseH, deps)
	router.RegisterAdmin(e, adminH, deps)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, sweep every %s)", addr, cfg.Env, cfg.SweepInterval)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
