package api

import (
	"embed"
	"html/template"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/auth"
	"github.com/your-org/facegate/internal/directory"
	"github.com/your-org/facegate/internal/gateway"
)

//go:embed templates/*.html
var templateFS embed.FS

type RouterConfig struct {
	APIKey         string
	MaxUploadBytes int64
	Service        *gateway.Service
	Directory      directory.Directory
	Hub            *ws.Hub
	// Checks are run by /readyz, keyed by dependency name.
	Checks map[string]handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())
	r.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Browser pages
	idH := handlers.NewIdentityHandler(cfg.Service, cfg.Directory, cfg.MaxUploadBytes)
	r.GET("/", idH.Landing)
	r.GET("/addUser", idH.AddUserPage)
	r.POST("/upload", idH.Upload)
	r.POST("/add_employee", idH.AddEmployee)

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	v1.GET("/ws", cfg.Hub.HandleWS)
	v1.POST("/identify", idH.Identify)
	v1.POST("/enrollments", idH.Enroll)
	v1.GET("/identities/:faceId", idH.Get)

	return r
}
