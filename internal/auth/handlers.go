package auth

import (
	"QRLinks-Backend/internal/repository"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// AuthHandlers обработчики аутентификации
type AuthHandlers struct {
	users           repository.UserStore
	jwtService      *JWTService
	passwordService *PasswordService
	validate        *validator.Validate
	log             *zap.Logger
	now             func() time.Time
}

// NewAuthHandlers создает новые обработчики аутентификации
func NewAuthHandlers(users repository.UserStore, jwtService *JWTService, passwordService *PasswordService, log *zap.Logger) *AuthHandlers {
	return &AuthHandlers{
		users:           users,
		jwtService:      jwtService,
		passwordService: passwordService,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		log:             log,
		now:             time.Now,
	}
}

// CredentialsRequest запрос регистрации и входа
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password"`
}

// RefreshRequest запрос обновления токенов
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse структура ответа аутентификации
type AuthResponse struct {
	TokenPair
	User UserInfo `json:"user"`
}

// UserInfo информация о пользователе
type UserInfo struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// ErrorResponse структура ошибки
type ErrorResponse struct {
	Error string `json:"error"`
}

// Register обработчик регистрации
//
//	@Summary		Register a new user
//	@Description	Create a user account; the user id becomes the owner of the links the user creates
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CredentialsRequest	true	"Registration request"
//	@Success		201		{object}	AuthResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/auth/register [post]
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	if err := IsValidPassword(req.Password); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	hashedPassword, err := h.passwordService.HashPassword(req.Password)
	if err != nil {
		h.log.Error("failed to hash password", zap.Error(err))
		writeError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Email, hashedPassword)
	if errors.Is(err, repository.ErrUserExists) {
		writeError(w, "user with this email already exists", http.StatusConflict)
		return
	}
	if err != nil {
		h.log.Error("failed to create user", zap.String("email", req.Email), zap.Error(err))
		writeError(w, "failed to create user", http.StatusServiceUnavailable)
		return
	}

	h.log.Info("user registered", zap.Int64("user_id", user.ID))
	h.respondWithTokens(w, user.ID, user.Email, http.StatusCreated)
}

// Login обработчик входа
//
//	@Summary		Login user
//	@Description	Authenticate user and receive JWT tokens
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CredentialsRequest	true	"Login request"
//	@Success		200		{object}	AuthResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Router			/auth/login [post]
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			h.log.Error("failed to load user", zap.Error(err))
			writeError(w, "user store unavailable", http.StatusServiceUnavailable)
			return
		}
		h.log.Debug("user not found for login")
		writeError(w, "invalid email or password", http.StatusUnauthorized)
		return
	}

	if err := h.passwordService.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		h.log.Debug("invalid password", zap.Int64("user_id", user.ID))
		writeError(w, "invalid email or password", http.StatusUnauthorized)
		return
	}

	if err := h.users.TouchLastLogin(r.Context(), user.ID, h.now().UTC()); err != nil {
		h.log.Warn("failed to update last login time", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	h.log.Info("user logged in", zap.Int64("user_id", user.ID))
	h.respondWithTokens(w, user.ID, user.Email, http.StatusOK)
}

// Refresh выдает новую пару токенов по refresh токену
//
//	@Summary		Refresh tokens
//	@Tags			Authentication
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	AuthResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Router			/auth/refresh [post]
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, "refreshToken is required", http.StatusBadRequest)
		return
	}

	claims, err := h.jwtService.ValidateToken(req.RefreshToken, TokenRefresh)
	if err != nil {
		h.log.Debug("invalid refresh token", zap.Error(err))
		writeError(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}

	// пользователь мог быть удален после выдачи токена
	user, err := h.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}

	h.respondWithTokens(w, user.ID, user.Email, http.StatusOK)
}

func (h *AuthHandlers) decodeCredentials(w http.ResponseWriter, r *http.Request) (CredentialsRequest, bool) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid credentials request", zap.Error(err))
		writeError(w, "invalid request format", http.StatusBadRequest)
		return req, false
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.validate.Struct(req); err != nil {
		writeError(w, "invalid email format", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (h *AuthHandlers) respondWithTokens(w http.ResponseWriter, userID int64, email string, status int) {
	pair, err := h.jwtService.IssuePair(userID, email)
	if err != nil {
		h.log.Error("failed to issue tokens", zap.Error(err))
		writeError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, AuthResponse{
		TokenPair: *pair,
		User:      UserInfo{ID: userID, Email: email},
	}, status)
}

// Helper methods

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: message}, statusCode)
}
