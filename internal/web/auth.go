package web

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/org"
)

// public registers a handler that anyone can reach.
func (s *Server) public(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// throttled registers a public handler that is rate limited per client.
// Token links and credential checks are registered this way.
func (s *Server) throttled(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, s.limited(handler))
}

// admin registers a handler that requires a logged in admin. Which tenants
// the admin can act upon is decided by the services.
func (s *Server) admin(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := authz.PrincipalFromContext(r.Context()).(authz.SessionPrincipal)
		if !ok {
			s.handleError(w, r, errorz.ErrUnauthenticated)
			return
		}

		handler.ServeHTTP(w, r)
	}))
}

// me describes the admin that is logged in.
type me struct {
	MemberID uuid.UUID     `json:"member_id"`
	Email    email.Address `json:"email"`
	TenantID uuid.NullUUID `json:"tenant_id"`
	Role     authz.Role    `json:"role"`
}

func meFromPrincipal(p authz.SessionPrincipal) me {
	return me{
		MemberID: p.MemberID,
		Email:    p.Email,
		TenantID: p.TenantID,
		Role:     p.Role,
	}
}

func (s *Server) loginHandler() http.Handler {
	return mapBoth(s, s.deps.Org.Authenticate).response(func(r result[org.Credentials, authz.SessionPrincipal]) error {
		// If we get here, the admin has been authenticated.
		sess, err := sessionFromCtx(r.r.Context())
		if err != nil {
			return err
		}

		sess.SetMemberID(r.out.MemberID)
		err = r.s.deps.SessionStore.Save(r.r, r.w, sess)
		if err != nil {
			return err
		}

		return writeJSON(r.w, http.StatusOK, meFromPrincipal(r.out))
	})
}

func (s *Server) logoutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFromCtx(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		sess.Clear()
		err = s.deps.SessionStore.Save(r, w, sess)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *Server) meHandler() http.Handler {
	return mapResponse(s, func(ctx context.Context) (me, error) {
		p, ok := authz.PrincipalFromContext(ctx).(authz.SessionPrincipal)
		if !ok {
			return me{}, errorz.ErrUnauthenticated
		}

		return meFromPrincipal(p), nil
	})
}
