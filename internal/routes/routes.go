package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/attestia/attestia/internal/audit"
	"github.com/attestia/attestia/internal/certificate"
	"github.com/attestia/attestia/internal/config"
	"github.com/attestia/attestia/internal/credential"
	"github.com/attestia/attestia/internal/document"
	"github.com/attestia/attestia/internal/middleware"
	"github.com/attestia/attestia/internal/notification"
	"github.com/attestia/attestia/internal/sequence"
	"github.com/attestia/attestia/internal/signing"
	"github.com/attestia/attestia/internal/twofactor"
	"github.com/attestia/attestia/internal/verifcode"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if d.Cfg.IsProduction() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.RequestLog(d.Logger))

	RegisterHealthRoutes(app, d)

	signer, err := verifcode.NewSigner(d.Cfg.SigningKey, d.Cfg.VerifyBaseURL, d.Cfg.VerifyMaxAge)
	if err != nil {
		return fmt.Errorf("verification signer: %w", err)
	}
	box, err := twofactor.NewSecretBox(d.Cfg.MasterSecret)
	if err != nil {
		return fmt.Errorf("secret box: %w", err)
	}

	auditor := audit.NewLoggerRecorder(d.Logger)
	notifier := notification.NewLoggerNotifier(d.Logger)
	renderer := document.NewRenderer(signer, document.NewFontResolver(d.Cfg.FontDir), d.Logger)

	var template *document.TemplateConfig
	if d.Cfg.TemplatePath != "" {
		template, err = document.LoadTemplate(d.Cfg.TemplatePath)
		if err != nil {
			d.Logger.Warn("template unavailable, rendering with fallback layout",
				"path", d.Cfg.TemplatePath, "error", err)
			template = nil
		}
	}

	var seqStore sequence.Store
	var certRepo certificate.Repository
	var credRepo credential.Repository
	if d.DB != nil {
		seqStore = sequence.NewPostgresStore(d.DB)
		certRepo = certificate.NewPostgresRepository(d.DB)
		credRepo = credential.NewPostgresRepository(d.DB)
	} else {
		seqStore = sequence.NewMemoryStore()
		certRepo = certificate.NewMemoryRepository()
		credRepo = credential.NewMemoryRepository()
	}

	var challenges twofactor.ChallengeStore
	if d.Cache != nil {
		challenges = twofactor.NewRedisChallengeStore(d.Cache)
	} else {
		challenges = twofactor.NewMemoryChallengeStore(0)
	}

	allocator := sequence.NewAllocator(seqStore, d.Cfg.NumberPrefix)
	certSvc := certificate.NewService(certRepo, allocator, renderer, template, auditor, d.Logger, d.Cfg.DocumentDir)
	credSvc := credential.NewService(credRepo, auditor, d.Cfg.MaxPINAttempts, d.Cfg.LockoutWindow)
	signingSvc := signing.NewService(certRepo, credSvc, renderer, auditor, d.Logger)

	tokenSecret, err := twofactor.DeriveTokenSecret(d.Cfg.MasterSecret)
	if err != nil {
		return fmt.Errorf("session token key: %w", err)
	}
	authority, err := twofactor.NewAuthority(credRepo, challenges, notifier, box, auditor, twofactor.AuthorityConfig{
		TokenSecret:  tokenSecret,
		ChallengeTTL: d.Cfg.ChallengeTTL,
		SessionTTL:   d.Cfg.SessionTTL,
		Issuer:       d.Cfg.AppName,
	})
	if err != nil {
		return fmt.Errorf("two-factor authority: %w", err)
	}

	certHandler := certificate.NewHandler(certSvc)
	verifyHandler := certificate.NewVerifyHandler(certSvc, signer, auditor)
	credHandler := credential.NewHandler(credSvc)
	twofactorHandler := twofactor.NewHandler(authority)
	signingHandler := signing.NewHandler(signingSvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes.
	api.Get("/verify", verifyHandler.Verify)
	rateLimiter := middleware.OTPRateLimit(d.Cache, 5)
	RegisterTwoFactorRoutes(api, twofactorHandler, rateLimiter)
	api.Post("/credentials", credHandler.Set)

	RegisterCertificateRoutes(api, certHandler, issuanceMiddlewares(d)...)

	// Signing requires a completed two-factor check.
	session := middleware.Session(authority, twofactor.ActionSign)
	RegisterSigningRoutes(api.Group("", session), signingHandler)

	return nil
}

// issuanceMiddlewares guards the unsafe issuance route with idempotency when
// a cache is available. A retried request must not burn a second number.
func issuanceMiddlewares(d Deps) []fiber.Handler {
	if d.Cache == nil {
		return nil
	}
	return []fiber.Handler{middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)}
}
