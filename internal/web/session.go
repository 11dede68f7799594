package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/web/sessions"
)

// session is a middleware that loads the session and the principal of
// the admin that is logged in, and injects both in the context.
//
// The principal is reloaded on every request so role changes and removed
// profiles take effect immediately.
func (s *Server) session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.deps.SessionStore.Get(r)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		ctx := ctxWithSession(r.Context(), sess)

		memberID, ok := sess.MemberID()
		if ok {
			p, err := s.deps.Org.Principal(ctx, memberID)
			switch {
			case err == nil:
				ctx = authz.ContextWithPrincipal(ctx, p)
			case errors.Is(err, errorz.ErrUnauthenticated):
				sess.Clear()
				err = s.deps.SessionStore.Save(r, w, sess)
				if err != nil {
					s.handleError(w, r, err)
					return
				}
			default:
				s.handleError(w, r, err)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type ctxKey string

const sessionCtxKey ctxKey = "_session"

func ctxWithSession(ctx context.Context, sess *sessions.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sess)
}

func sessionFromCtx(ctx context.Context) (*sessions.Session, error) {
	sess, ok := ctx.Value(sessionCtxKey).(*sessions.Session)
	if !ok {
		return nil, fmt.Errorf("could not get session from context")
	}

	return sess, nil
}
