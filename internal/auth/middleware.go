package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"go.uber.org/zap"
)

// ContextKey тип для ключей контекста
type ContextKey string

// UserIDKey ключ для получения ID пользователя из контекста
const UserIDKey ContextKey = "user_id"

// Middleware JWT middleware для HTTP обработчиков
type Middleware struct {
	jwtService *JWTService
	log        *zap.Logger
}

// NewMiddleware создает новый JWT middleware
func NewMiddleware(jwtService *JWTService, log *zap.Logger) *Middleware {
	return &Middleware{
		jwtService: jwtService,
		log:        log,
	}
}

// RequireAuth пропускает запрос только с валидным access токеном
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ExtractTokenFromBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			m.log.Debug("missing or malformed authorization header")
			writeError(w, "authorization required", http.StatusUnauthorized)
			return
		}

		claims, err := m.jwtService.ValidateToken(tokenString, TokenAccess)
		if err != nil {
			m.log.Debug("invalid token", zap.Error(err))
			if errors.Is(err, ErrExpiredToken) {
				writeError(w, "token expired", http.StatusUnauthorized)
			} else {
				writeError(w, "invalid token", http.StatusUnauthorized)
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// OptionalAuth добавляет пользователя в контекст, если токен валиден.
// Запрос с неверным токеном отклоняется: клиент явно пытался представиться.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.jwtService.ValidateToken(ExtractTokenFromBearer(authHeader), TokenAccess)
		if err != nil {
			m.log.Debug("optional auth: invalid token", zap.Error(err))
			writeError(w, "invalid token", http.StatusUnauthorized)
			return
		}

		m.log.Debug("authenticated user", zap.Int64("user_id", claims.UserID))
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func withClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, UserIDKey, claims.UserID)
}

// GetUserIDFromContext извлекает ID пользователя из контекста
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}

// OwnerFromContext возвращает идентификатор владельца ссылок для аутентифицированного запроса
func OwnerFromContext(ctx context.Context) (string, bool) {
	userID, ok := GetUserIDFromContext(ctx)
	if !ok {
		return "", false
	}
	return strconv.FormatInt(userID, 10), true
}

// CORS middleware с разрешенными origins из конфигурации. "*" разрешает любой origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAny := slices.Contains(allowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAny || slices.Contains(allowedOrigins, origin)) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID")

			// preflight
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
