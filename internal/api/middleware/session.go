// session.go — middleware аутентификации по cookie сессии.
package middleware

import (
	"context"
	"net/http"

	apierrors "github.com/megalinks/megalinks/internal/api/errors"
	"github.com/megalinks/megalinks/internal/service"
)

// SessionCookieName — имя cookie с идентификатором сессии.
const SessionCookieName = "session"

type contextKey string

// ContextKeySession — ключ контекста для service.Session.
const ContextKeySession contextKey = "session"

// Authenticator — проверка идентификатора сессии.
type Authenticator interface {
	Authenticate(sessionID string) (service.Session, error)
}

// RequireSession возвращает middleware, пропускающий только запросы с активной сессией.
// Сессия кладётся в контекст запроса, владельца можно получить через OwnerFromContext.
func RequireSession(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				apierrors.Unauthorized(w, "Требуется вход")
				return
			}

			session, err := auth.Authenticate(cookie.Value)
			if err != nil {
				apierrors.Unauthorized(w, "Сессия истекла или не найдена")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySession, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext извлекает сессию из контекста запроса.
func SessionFromContext(ctx context.Context) (service.Session, bool) {
	session, ok := ctx.Value(ContextKeySession).(service.Session)
	return session, ok
}

// OwnerFromContext возвращает идентификатор пользователя текущей сессии (0, если сессии нет).
func OwnerFromContext(ctx context.Context) int64 {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return 0
	}
	return session.UserID
}
