package portal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/db"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/org"
	"github.com/willemschots/volunteerhub/internal/poll"
	"github.com/willemschots/volunteerhub/internal/signup"
)

// TemplateAccess is the template of the email containing a portal link.
const TemplateAccess = "member-portal-access"

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data any) error
}

// ErrFunc is a function that handles errors.
type ErrFunc func(error)

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// WorkerTimeout is the max duration worker goroutines are allowed
	// to take befor they are cancelled.
	WorkerTimeout time.Duration
}

// AccessEmail is the data of the portal access email.
type AccessEmail struct {
	TenantName string
	Name       string
	URL        string
}

// Service gives members access to their portal.
type Service struct {
	store      Store
	tokens     *access.Service
	emailer    Emailer
	wg         *sync.WaitGroup
	errHandler ErrFunc
	cfg        ServiceConfig

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s Store, tokens *access.Service, emailer Emailer, errHandler ErrFunc, cfg ServiceConfig) *Service {
	return &Service{
		store:      s,
		tokens:     tokens,
		emailer:    emailer,
		wg:         &sync.WaitGroup{},
		errHandler: errHandler,
		cfg:        cfg,
		NowFunc:    time.Now,
	}
}

// Wait waits for all open workers to finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// AccessRequest is the input for RequestAccess.
type AccessRequest struct {
	TenantSlug string        `json:"tenant"`
	Email      email.Address `json:"email"`
}

// RequestAccess emails a portal link to the member with the provided email
// address. The work is done in a separate goroutine and the result is the
// same whether or not the member exists.
func (s *Service) RequestAccess(_ context.Context, req AccessRequest) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerTimeout)
		defer cancel()

		err := s.sendAccess(wCtx, req)
		if err != nil {
			s.errHandler(err)
			return
		}
	}()

	return nil
}

func (s *Service) sendAccess(ctx context.Context, req AccessRequest) error {
	var (
		tenant  org.Tenant
		contact org.Contact
		issued  access.Issued
	)
	err := s.inTx(ctx, func(tx Tx) error {
		tenants, err := tx.FindTenants(&org.TenantFilter{Slugs: []string{req.TenantSlug}})
		if err != nil {
			return err
		}

		if len(tenants) != 1 {
			return fmt.Errorf("portal access for tenant %q: %w", req.TenantSlug, errorz.ErrNotFound)
		}
		tenant = tenants[0]

		contact, err = tx.FindContact(tenant.ID, req.Email)
		if err != nil {
			return fmt.Errorf("portal access for non-member: %w", err)
		}

		issued, err = s.tokens.Issue(tx, access.Request{
			Purpose:  access.PurposePortal,
			Subject:  contact.Email,
			TenantID: uuid.NullUUID{UUID: tenant.ID, Valid: true},
		})
		return err
	})
	if err != nil {
		return err
	}

	err = s.emailer.Send(ctx, TemplateAccess, contact.Email, AccessEmail{
		TenantName: tenant.Name,
		Name:       contact.Name,
		URL:        issued.URL,
	})
	if err == nil {
		return nil
	}

	rErr := s.inTx(ctx, func(tx Tx) error {
		return s.tokens.Revoke(tx, issued.Token.ID)
	})

	return errors.Join(err, rErr)
}

// TokenRef refers to a portal token.
type TokenRef struct {
	Token string `json:"-" schema:"token"`
}

// View is everything a member sees in the portal. Actor is the member
// acting through the portal token.
type View struct {
	Actor         authz.ActingContext `json:"-"`
	Tenant        org.Tenant          `json:"tenant"`
	Member        org.Contact         `json:"member"`
	Opportunities []OpportunityView   `json:"opportunities"`
	Hours         HoursSummary        `json:"hours"`
	Polls         []PollView          `json:"polls"`
	Roster        []RosterEntry       `json:"roster"`
}

// OpportunityView is an upcoming opportunity. SignupURL is empty when the
// member already signed up.
type OpportunityView struct {
	Opportunity signup.Opportunity `json:"opportunity"`
	SignedUp    bool               `json:"signed_up"`
	SignupURL   string             `json:"signup_url,omitempty"`
}

// HoursSummary sums the recorded hours of a member.
type HoursSummary struct {
	Total   float64 `json:"total"`
	Signups int     `json:"signups"`
}

// PollView is an active poll the member was asked to answer.
type PollView struct {
	Poll     poll.Poll `json:"poll"`
	Response *string   `json:"response"`
	VoteURL  string    `json:"vote_url"`
}

// RosterEntry is a member of the tenant as other members see them.
type RosterEntry struct {
	Name string     `json:"name"`
	Role authz.Role `json:"role"`
}

// Open consumes a portal token and returns the portal of the member it was
// issued to. Fresh signup and vote links are issued for the view.
func (s *Service) Open(ctx context.Context, ref TokenRef) (View, error) {
	var v View
	err := s.inTx(ctx, func(tx Tx) error {
		tok, err := s.tokens.Validate(tx, ref.Token, access.PurposePortal)
		if err != nil {
			return err
		}

		ac := tok.Capability().ActingContext()
		if !ac.TenantID.Valid {
			return fmt.Errorf("portal token without tenant: %w", errorz.ErrNotFound)
		}

		err = s.tokens.Consume(tx, tok)
		if err != nil {
			return err
		}

		tenants, err := tx.FindTenants(&org.TenantFilter{IDs: []uuid.UUID{ac.TenantID.UUID}})
		if err != nil {
			return err
		}

		if len(tenants) != 1 {
			return fmt.Errorf("tenant %s: %w", ac.TenantID.UUID, errorz.ErrNotFound)
		}

		member, err := tx.FindContact(ac.TenantID.UUID, ac.Email)
		if err != nil {
			return err
		}

		v = View{
			Actor:  ac,
			Tenant: tenants[0],
			Member: member,
		}

		now := s.NowFunc()

		v.Opportunities, v.Hours, err = s.opportunities(tx, v.Tenant.ID, member.Email, now)
		if err != nil {
			return err
		}

		v.Polls, err = s.polls(tx, v.Tenant.ID, member.Email, now)
		if err != nil {
			return err
		}

		v.Roster, err = roster(tx, v.Tenant.ID)
		return err
	})
	if err != nil {
		return View{}, err
	}

	return v, nil
}

func (s *Service) opportunities(tx Tx, tenantID uuid.UUID, addr email.Address, now time.Time) ([]OpportunityView, HoursSummary, error) {
	opps, err := tx.FindOpportunities(&signup.OpportunityFilter{TenantIDs: []uuid.UUID{tenantID}})
	if err != nil {
		return nil, HoursSummary{}, err
	}

	signups, err := tx.FindSignups(&signup.SignupFilter{
		TenantIDs:    []uuid.UUID{tenantID},
		MemberEmails: []email.Address{addr},
		Statuses:     []signup.Status{signup.StatusConfirmed},
	})
	if err != nil {
		return nil, HoursSummary{}, err
	}

	var hours HoursSummary
	confirmed := make(map[uuid.UUID]bool, len(signups))
	for _, su := range signups {
		confirmed[su.OpportunityID] = true
		if su.Hours != nil {
			hours.Total += *su.Hours
			hours.Signups++
		}
	}

	views := []OpportunityView{}
	for _, o := range opps {
		if !o.Open(now) {
			continue
		}

		view := OpportunityView{
			Opportunity: o,
			SignedUp:    confirmed[o.ID],
		}

		if !view.SignedUp {
			expiresAt := now.Add(s.tokens.TTL(access.PurposeSignup))
			if o.StartsAt.Before(expiresAt) {
				expiresAt = o.StartsAt
			}

			issued, err := s.tokens.Issue(tx, access.Request{
				Purpose:    access.PurposeSignup,
				Subject:    addr,
				TenantID:   uuid.NullUUID{UUID: tenantID, Valid: true},
				ContextRef: uuid.NullUUID{UUID: o.ID, Valid: true},
				ExpiresAt:  expiresAt,
			})
			if err != nil {
				return nil, HoursSummary{}, err
			}
			view.SignupURL = issued.URL
		}

		views = append(views, view)
	}

	return views, hours, nil
}

func (s *Service) polls(tx Tx, tenantID uuid.UUID, addr email.Address, now time.Time) ([]PollView, error) {
	responses, err := tx.FindResponses(&poll.ResponseFilter{MemberEmails: []email.Address{addr}})
	if err != nil {
		return nil, err
	}

	if len(responses) == 0 {
		return []PollView{}, nil
	}

	byPoll := make(map[uuid.UUID]poll.Response, len(responses))
	ids := make([]uuid.UUID, 0, len(responses))
	for _, r := range responses {
		byPoll[r.PollID] = r
		ids = append(ids, r.PollID)
	}

	polls, err := tx.FindPolls(&poll.PollFilter{
		IDs:       ids,
		TenantIDs: []uuid.UUID{tenantID},
		Statuses:  []poll.Status{poll.StatusActive},
	})
	if err != nil {
		return nil, err
	}

	views := []PollView{}
	for _, p := range polls {
		if !p.Open(now) {
			continue
		}

		req := access.Request{
			Purpose:    access.PurposePoll,
			Subject:    addr,
			TenantID:   uuid.NullUUID{UUID: tenantID, Valid: true},
			ContextRef: uuid.NullUUID{UUID: p.ID, Valid: true},
		}
		if p.ExpiresAt != nil {
			req.ExpiresAt = *p.ExpiresAt
		}

		issued, err := s.tokens.Issue(tx, req)
		if err != nil {
			return nil, err
		}

		views = append(views, PollView{
			Poll:     p,
			Response: byPoll[p.ID].Value,
			VoteURL:  issued.URL,
		})
	}

	return views, nil
}

func roster(tx Tx, tenantID uuid.UUID) ([]RosterEntry, error) {
	contacts, err := tx.FindContacts(tenantID, nil)
	if err != nil {
		return nil, err
	}

	entries := make([]RosterEntry, 0, len(contacts))
	for _, c := range contacts {
		entries = append(entries, RosterEntry{Name: c.Name, Role: c.Role})
	}

	return entries, nil
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	return db.InTx(ctx, s.store.BeginTx, f)
}
