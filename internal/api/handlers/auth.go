// auth.go — обработчики /api/v1/auth/*: регистрация и вход по PIN.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/megalinks/megalinks/internal/api/errors"
	"github.com/megalinks/megalinks/internal/api/middleware"
)

type registerRequest struct {
	PIN         string `json:"pin"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	PIN string `json:"pin"`
}

type userResponse struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

type sessionResponse struct {
	UserID      int64     `json:"userId"`
	DisplayName string    `json:"displayName"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type checkPINResponse struct {
	Available bool `json:"available"`
}

// Register — POST /api/v1/auth/register.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	user, err := h.auth.Register(r.Context(), req.PIN, req.DisplayName)
	if err != nil {
		h.writeServiceError(w, err, "регистрация")
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		CreatedAt:   user.CreatedAt,
	})
}

// Login — POST /api/v1/auth/login. Устанавливает cookie сессии.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	session, err := h.auth.Login(r.Context(), req.PIN)
	if err != nil {
		h.writeServiceError(w, err, "вход")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		MaxAge:   h.auth.SessionTTL(),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:      session.UserID,
		DisplayName: session.DisplayName,
		ExpiresAt:   session.ExpiresAt,
	})
}

// Logout — POST /api/v1/auth/logout. Работает и без активной сессии.
func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
		h.auth.Logout(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me — GET /api/v1/auth/me. Требует сессию.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется вход")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:      session.UserID,
		DisplayName: session.DisplayName,
		ExpiresAt:   session.ExpiresAt,
	})
}

// CheckPIN — GET /api/v1/auth/check-pin/{pin}.
func (h *APIHandler) CheckPIN(w http.ResponseWriter, r *http.Request) {
	available, err := h.auth.CheckPIN(r.Context(), chi.URLParam(r, "pin"))
	if err != nil {
		h.writeServiceError(w, err, "проверка PIN")
		return
	}
	writeJSON(w, http.StatusOK, checkPINResponse{Available: available})
}
