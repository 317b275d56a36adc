package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/attend/internal/anomaly"
	"github.com/your-org/attend/internal/api/handlers"
	"github.com/your-org/attend/internal/api/ws"
	"github.com/your-org/attend/internal/attendance"
	"github.com/your-org/attend/internal/auth"
	"github.com/your-org/attend/internal/biometric"
	"github.com/your-org/attend/internal/certificate"
	"github.com/your-org/attend/internal/consent"
	"github.com/your-org/attend/internal/queue"
	"github.com/your-org/attend/internal/storage"
)

type RouterConfig struct {
	APIKey     string
	DB         *storage.PostgresStore
	MinIO      *storage.MinIOStore
	Producer   *queue.Producer
	Hub        *ws.Hub
	Ledger     *consent.Ledger
	Store      *biometric.Store
	Attendance *attendance.Service
	Anomalies  *anomaly.Service
	Certs      *certificate.Service
	// EmbedFn extracts a descriptor from image bytes (from the ONNX
	// extractor). Nil when the service runs without a model.
	EmbedFn func(imageData []byte) ([]float64, float64, error)
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	certH := handlers.NewCertificateHandler(cfg.Certs, cfg.Producer)

	// Public certificate verification (no auth): third parties hold only the
	// certificate number or verification code.
	r.GET("/v1/verify/:code", certH.Verify)

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Subjects, consent, templates
	subjectH := handlers.NewSubjectHandler(cfg.DB, cfg.MinIO, cfg.Ledger, cfg.Store)
	subjectH.EmbedFn = cfg.EmbedFn
	v1.POST("/subjects", subjectH.Create)
	v1.GET("/subjects", subjectH.List)
	v1.GET("/subjects/:id", subjectH.Get)
	v1.POST("/subjects/:id/consents", subjectH.GrantConsent)
	v1.GET("/subjects/:id/consents", subjectH.ListConsents)
	v1.DELETE("/subjects/:id/consents/:purpose", subjectH.WithdrawConsent)
	v1.POST("/subjects/:id/templates", subjectH.Enroll)
	v1.GET("/subjects/:id/templates", subjectH.ListTemplates)
	v1.POST("/subjects/:id/templates/:templateId/primary", subjectH.SetPrimaryTemplate)
	v1.DELETE("/subjects/:id/templates/:templateId", subjectH.DeleteTemplate)

	// Sessions and check-ins
	sessionH := handlers.NewSessionHandler(cfg.Attendance, cfg.Store, cfg.Producer)
	v1.POST("/sessions", sessionH.Create)
	v1.GET("/sessions", sessionH.List)
	v1.GET("/sessions/:id", sessionH.Get)
	v1.POST("/sessions/:id/checkins", sessionH.CheckIn)
	v1.GET("/sessions/:id/checkins", sessionH.ListCheckIns)
	v1.POST("/checkins/:checkinId/checkout", sessionH.CheckOut)
	v1.POST("/recognize", sessionH.Recognize)

	// Anomalies
	anomalyH := handlers.NewAnomalyHandler(cfg.Anomalies)
	v1.GET("/anomalies", anomalyH.List)
	v1.GET("/anomalies/:id", anomalyH.Get)
	v1.POST("/anomalies/:id/resolve", anomalyH.Resolve)

	// Certificates
	v1.POST("/checkins/:checkinId/certificate", certH.Issue)
	v1.GET("/certificates/:number", certH.Get)

	return r
}
