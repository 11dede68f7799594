package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/schema"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/obs"
	"github.com/willemschots/volunteerhub/internal/org"
	"github.com/willemschots/volunteerhub/internal/poll"
	"github.com/willemschots/volunteerhub/internal/portal"
	"github.com/willemschots/volunteerhub/internal/signup"
	"github.com/willemschots/volunteerhub/internal/web/sessions"
)

// maxImportBytes limits the size of member import files.
const maxImportBytes = 10 << 20

// PageRenderer renders named pages with the given data.
type PageRenderer interface {
	Render(w io.Writer, name string, data any) error
}

// ServerDeps are the dependencies for the server.
type ServerDeps struct {
	Logger       *slog.Logger
	PageRenderer PageRenderer
	SessionStore *sessions.Store
	Org          *org.Service
	Signup       *signup.Service
	Poll         *poll.Service
	Portal       *portal.Service
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// ServerConfig is the configuration for the server.
type ServerConfig struct {
	// ThrottleInterval is the time in which a client regains one request
	// to the throttled endpoints. Zero disables throttling.
	ThrottleInterval time.Duration
	ThrottleBurst    int
	// BulkWriteTimeout replaces the write timeout of the http.Server for
	// endpoints that email a whole tenant. Zero keeps the server's timeout.
	BulkWriteTimeout time.Duration
}

type Server struct {
	deps             *ServerDeps
	mux              *http.ServeMux
	decoder          *schema.Decoder
	limiter          *ipLimiter
	bulkWriteTimeout time.Duration
	handler          http.Handler
}

func NewServer(deps *ServerDeps, cfg ServerConfig) *Server {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	s := &Server{
		deps:             deps,
		mux:              http.NewServeMux(),
		decoder:          decoder,
		limiter:          newIPLimiter(cfg.ThrottleInterval, cfg.ThrottleBurst),
		bulkWriteTimeout: cfg.BulkWriteTimeout,
	}

	// Most endpoints below are created using the map functions.
	// These return handlers that map between HTTP requests, service calls and HTTP responses.
	// The request mapping and response writing is customizable.

	s.public("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	if deps.Metrics != nil {
		s.public("GET /metrics", deps.Metrics)
	}

	// Admin login endpoints.
	s.throttled("POST /api/login", s.loginHandler())
	s.public("POST /api/logout", s.logoutHandler())
	s.public("GET /api/me", s.meHandler())

	// Password endpoints. Requesting a reset always results in the same
	// response, whether the address belongs to an admin or not.
	s.throttled("POST /api/password-resets", mapRequest(s, deps.Org.RequestPasswordReset).accepted())
	s.passwordEndpoints("/set-password/{token}", access.PurposePasswordSetup, "Your password was set, you can now log in.")
	s.passwordEndpoints("/reset-password/{token}", access.PurposePasswordReset, "Your password was changed, you can now log in.")

	// Member portal endpoints. Requesting access works like a password reset.
	s.throttled("POST /api/portal-access", mapRequest(s, deps.Portal.RequestAccess).accepted())
	s.throttled("GET /portal/{token}", mapBoth(s, deps.Portal.Open).page("portal"))

	// Signup link endpoints.
	s.throttled("GET /signup/{token}", mapBoth(s, deps.Signup.Preview).page("signup"))
	s.throttled("POST /signup/{token}", mapBoth(s, deps.Signup.SignUp).done("You are signed up, thank you!"))

	// Vote link endpoints.
	s.throttled("GET /vote/{token}", mapBoth(s, deps.Poll.Ballot).page("vote"))
	s.throttled("POST /vote/{token}", mapBoth(s, deps.Poll.Vote).done("Thank you, your answer was saved."))

	// Tenant endpoints.
	s.admin("GET /api/tenants", mapResponse(s, deps.Org.ListTenants))
	s.admin("POST /api/tenants", mapBoth(s, deps.Org.CreateTenant).status(http.StatusCreated))

	// Member endpoints.
	s.admin("GET /api/tenants/{tenant_id}/members", mapBoth(s, deps.Org.ListMembers))
	s.admin("POST /api/tenants/{tenant_id}/members", mapBoth(s, deps.Org.AddMember).status(http.StatusCreated))
	{
		h := mapBoth(s, deps.Org.ImportMembers).request(func(r *http.Request) (org.MemberImport, error) {
			in, err := defaultRequest[org.MemberImport](s, r)
			if err != nil {
				return in, err
			}

			in.CSV = http.MaxBytesReader(nil, r.Body, maxImportBytes)
			return in, nil
		})

		s.admin("POST /api/tenants/{tenant_id}/members/import", h)
	}
	s.admin("PATCH /api/members/{member_id}", mapBoth(s, deps.Org.UpdateMember))
	s.admin("DELETE /api/members/{member_id}", mapRequest(s, deps.Org.RemoveMember))
	s.admin("PUT /api/members/{member_id}/role", mapBoth(s, deps.Org.ChangeRole))
	s.admin("POST /api/members/{member_id}/setup-link", mapRequest(s, deps.Org.ResendSetupLink))

	// Group endpoints.
	s.admin("GET /api/tenants/{tenant_id}/groups", mapBoth(s, deps.Org.ListGroups))
	s.admin("POST /api/tenants/{tenant_id}/groups", mapBoth(s, deps.Org.CreateGroup).status(http.StatusCreated))
	s.admin("PUT /api/groups/{group_id}/members", mapBoth(s, deps.Org.SetGroupMembers))

	// Project and opportunity endpoints.
	s.admin("GET /api/tenants/{tenant_id}/projects", mapBoth(s, deps.Signup.ListProjects))
	s.admin("POST /api/tenants/{tenant_id}/projects", mapBoth(s, deps.Signup.CreateProject).status(http.StatusCreated))
	s.admin("GET /api/tenants/{tenant_id}/opportunities", mapBoth(s, deps.Signup.ListOpportunities))
	s.admin("POST /api/tenants/{tenant_id}/opportunities", mapBoth(s, deps.Signup.CreateOpportunity).status(http.StatusCreated))
	s.admin("GET /api/opportunities/{opportunity_id}/signups", mapBoth(s, deps.Signup.ListSignups))
	s.admin("POST /api/tenants/{tenant_id}/broadcasts", s.bulk(mapBoth(s, deps.Signup.Broadcast)))
	s.admin("DELETE /api/signups/{signup_id}", mapBoth(s, deps.Signup.CancelSignup))
	s.admin("PUT /api/signups/{signup_id}/hours", mapBoth(s, deps.Signup.RecordHours))

	// Poll endpoints.
	s.admin("GET /api/tenants/{tenant_id}/polls", mapBoth(s, deps.Poll.ListPolls))
	s.admin("POST /api/tenants/{tenant_id}/polls", s.bulk(mapBoth(s, deps.Poll.CreatePoll).status(http.StatusCreated)))
	s.admin("POST /api/polls/{poll_id}/close", mapBoth(s, deps.Poll.ClosePoll))
	s.admin("GET /api/polls/{poll_id}/results", mapBoth(s, deps.Poll.Results))

	// Wrap the mux with global middlewares. The ServeMux sets the matched
	// pattern on the request it receives, so the middlewares that report
	// the pattern need to come last.
	middlewares := []func(http.Handler) http.Handler{
		securityHeaders,
		s.recoverPanics,
		s.session,
		s.logRequests,
		obs.Instrument,
	}
	s.handler = s.mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		s.handler = middlewares[i](s.handler)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// passwordEndpoints registers the page and the form handler that complete
// a password setup or reset.
func (s *Server) passwordEndpoints(path string, purpose access.Purpose, msg string) {
	type tokenRef struct {
		Token string `json:"-" schema:"token"`
	}

	// the target func only passes the input on, the token is validated
	// when the form is posted.
	s.throttled("GET "+path, mapBoth(s, func(_ context.Context, ref tokenRef) (tokenRef, error) {
		return ref, nil
	}).page("password"))

	h := mapRequest(s, s.deps.Org.SetPassword).request(func(r *http.Request) (org.NewPassword, error) {
		in, err := defaultRequest[org.NewPassword](s, r)
		in.Purpose = purpose
		return in, err
	})

	s.throttled("POST "+path, h.done(msg))
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.deps.Logger.Error("internal server error", "method", r.Method, "path", obs.CanonicalPath(r.Pattern), "error", err)
	}

	s.writeError(w, r, status, msg, invalidFields(err))
}

// writeError shows browsers an error page and other clients a JSON body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string, fields map[string]string) {
	if acceptsHTML(r) {
		err := s.writeMessage(w, status, msg)
		if err == nil {
			return
		}

		s.deps.Logger.Error("failed to render error page", "error", err)
	}

	_ = writeJSON(w, status, errorBody{
		Error:  msg,
		Fields: fields,
	})
}
