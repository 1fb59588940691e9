package http

import (
	"QRLinks-Backend/internal/auth"
	"QRLinks-Backend/internal/config"
	"QRLinks-Backend/internal/qr"
	"QRLinks-Backend/internal/repository"
	"QRLinks-Backend/internal/service"
	"fmt"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// Deps зависимости, из которых собирается HTTP API
type Deps struct {
	Registry  *service.Registry
	Resolver  *service.Resolver
	Renderer  *qr.Renderer
	Users     repository.UserStore
	JWT       *auth.JWTService
	Passwords *auth.PasswordService
	// Checks пингуются из /ready, ключ это имя проверки
	Checks map[string]Pinger
	// Stats отдается в /metrics; nil если сканирования пишутся синхронно
	Stats   StatsSource
	Version string
}

// Server связывает обработчики, middleware и маршруты
type Server struct {
	authHandlers    *auth.AuthHandlers
	linksHandler    *LinksHandler
	qrHandler       *QRHandler
	redirectHandler *RedirectHandler
	healthHandler   *HealthHandler
	authMiddleware  *auth.Middleware
	limiter         *RateLimiter
	clientIP        *ClientIP
	ownership       bool
	corsOrigins     []string
	log             *zap.Logger
}

// NewServer создает сервер. Ошибка возможна только при некорректном списке доверенных прокси
func NewServer(deps Deps, cfg *config.Config, log *zap.Logger) (*Server, error) {
	trusted, err := cfg.HTTPServer.TrustedPrefixes()
	if err != nil {
		return nil, fmt.Errorf("http server: %w", err)
	}
	clientIP := NewClientIP(trusted)

	s := &Server{
		authHandlers:    auth.NewAuthHandlers(deps.Users, deps.JWT, deps.Passwords, log),
		linksHandler:    NewLinksHandler(deps.Registry, log),
		qrHandler:       NewQRHandler(deps.Registry, deps.Renderer, log),
		redirectHandler: NewRedirectHandler(deps.Resolver, clientIP, log),
		healthHandler:   NewHealthHandler(deps.Checks, deps.Stats, deps.Version, log),
		authMiddleware:  auth.NewMiddleware(deps.JWT, log),
		clientIP:        clientIP,
		ownership:       deps.Registry.OwnershipEnabled(),
		corsOrigins:     cfg.HTTPServer.CORSOrigins,
		log:             log,
	}
	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, clientIP)
	}
	return s, nil
}

// SetupRoutes строит корневой обработчик
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// пробы и документация
	mux.HandleFunc("GET /health", s.healthHandler.Health)
	mux.HandleFunc("GET /ready", s.healthHandler.Ready)
	mux.HandleFunc("GET /metrics", s.healthHandler.Metrics)
	mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	mux.HandleFunc("POST /auth/register", s.authHandlers.Register)
	mux.HandleFunc("POST /auth/login", s.authHandlers.Login)
	mux.HandleFunc("POST /auth/refresh", s.authHandlers.Refresh)

	// С владельцами вызывающего определяет только токен
	guard := s.authMiddleware.OptionalAuth
	if s.ownership {
		guard = s.authMiddleware.RequireAuth
	}
	mux.Handle("POST /links", guard(http.HandlerFunc(s.linksHandler.CreateLink)))
	mux.Handle("GET /links", guard(http.HandlerFunc(s.linksHandler.ListLinks)))
	mux.Handle("GET /links/{slug}", guard(http.HandlerFunc(s.linksHandler.GetLink)))
	mux.Handle("PATCH /links/{slug}", guard(http.HandlerFunc(s.linksHandler.UpdateLink)))
	mux.Handle("DELETE /links/{slug}", guard(http.HandlerFunc(s.linksHandler.DeleteLink)))
	mux.Handle("POST /links/{slug}/rename", guard(http.HandlerFunc(s.linksHandler.RenameLink)))
	mux.Handle("GET /links/{slug}/scans", guard(http.HandlerFunc(s.linksHandler.ListScans)))
	mux.Handle("GET /links/{slug}/stats", guard(http.HandlerFunc(s.linksHandler.GetStats)))

	// QR и редирект публичны: их видит любой, кто держит код в руках
	mux.HandleFunc("GET /links/{slug}/qr", s.qrHandler.GetQR)
	mux.HandleFunc("GET /r/{slug}", s.redirectHandler.HandleRedirect)

	mws := []func(http.Handler) http.Handler{
		requestLogger(s.log, s.clientIP),
		auth.CORS(s.corsOrigins),
	}
	if s.limiter != nil {
		mws = append(mws, s.limiter.Middleware)
	}
	return chain(mux, mws...)
}
