package poll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/db"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/org"
)

// TemplateInvitation is the email with a vote link.
const TemplateInvitation = "poll-invitation"

// ErrClosed indicates a poll no longer accepts responses.
var ErrClosed = fmt.Errorf("poll is closed: %w", errorz.ErrExpired)

var (
	errRequired      = errors.New("required")
	errUnknownKind   = errors.New("must be yes_no or options")
	errTooFewOptions = errors.New("at least two options are required")
	errDuplicate     = errors.New("options must be unique")
	errInPast        = errors.New("must be in the future")
	errUnknownOption = errors.New("not one of the options")
)

var yesNoOptions = []string{"yes", "no"}

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data any) error
}

// InvitationEmail is the data of the poll invitation email.
type InvitationEmail struct {
	TenantName string
	Name       string
	Question   string
	ExpiresAt  *time.Time
	URL        string
}

// Service manages polls and their responses.
type Service struct {
	store   Store
	tokens  *access.Service
	emailer Emailer

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s Store, tokens *access.Service, emailer Emailer) *Service {
	return &Service{
		store:   s,
		tokens:  tokens,
		emailer: emailer,
		NowFunc: time.Now,
	}
}

// NewPoll is the input for CreatePoll. When GroupIDs is empty all members
// of the tenant are asked.
type NewPoll struct {
	TenantID  uuid.UUID   `json:"-" schema:"tenant_id"`
	Question  string      `json:"question"`
	Kind      Kind        `json:"kind"`
	Options   []string    `json:"options"`
	Anonymous bool        `json:"anonymous"`
	ExpiresAt *time.Time  `json:"expires_at"`
	GroupIDs  []uuid.UUID `json:"group_ids"`
}

func (n *NewPoll) validate(now time.Time) error {
	var errs errorz.InvalidInput
	if strings.TrimSpace(n.Question) == "" {
		errs = append(errs, errorz.Keyed{Key: "question", Err: errRequired})
	}

	switch n.Kind {
	case KindYesNo:
		n.Options = yesNoOptions
	case KindOptions:
		if len(n.Options) < 2 {
			errs = append(errs, errorz.Keyed{Key: "options", Err: errTooFewOptions})
		}
		seen := make(map[string]bool, len(n.Options))
		for _, o := range n.Options {
			if o == "" {
				errs = append(errs, errorz.Keyed{Key: "options", Err: errRequired})
			} else if seen[o] {
				errs = append(errs, errorz.Keyed{Key: "options", Err: errDuplicate})
			}
			seen[o] = true
		}
	default:
		errs = append(errs, errorz.Keyed{Key: "kind", Err: errUnknownKind})
	}

	if n.ExpiresAt != nil && !n.ExpiresAt.After(now) {
		errs = append(errs, errorz.Keyed{Key: "expires_at", Err: errInPast})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CreateReport is the result of CreatePoll.
type CreateReport struct {
	Poll   Poll     `json:"poll"`
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}

// CreatePoll creates a poll, prepares a response for every targeted member
// and emails each of them a vote link. Failed emails are reported, their
// tokens are revoked.
func (s *Service) CreatePoll(ctx context.Context, n NewPoll) (CreateReport, error) {
	_, err := authz.Require(ctx, authz.ActionManagePolls, n.TenantID)
	if err != nil {
		return CreateReport{}, err
	}

	now := s.NowFunc()
	err = n.validate(now)
	if err != nil {
		return CreateReport{}, err
	}

	p := Poll{
		ID:        uuid.New(),
		TenantID:  n.TenantID,
		Question:  n.Question,
		Kind:      n.Kind,
		Options:   n.Options,
		Anonymous: n.Anonymous,
		Status:    StatusActive,
		ExpiresAt: n.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var (
		tenantName string
		contacts   []org.Contact
	)
	err = s.inTx(ctx, func(tx Tx) error {
		tenants, txErr := tx.FindTenants(&org.TenantFilter{IDs: []uuid.UUID{n.TenantID}})
		if txErr != nil {
			return txErr
		}

		if len(tenants) != 1 {
			return fmt.Errorf("tenant %s: %w", n.TenantID, errorz.ErrNotFound)
		}
		tenantName = tenants[0].Name

		contacts, txErr = tx.FindContacts(n.TenantID, n.GroupIDs)
		if txErr != nil {
			return txErr
		}

		txErr = tx.CreatePoll(&p)
		if txErr != nil {
			return txErr
		}

		for _, c := range contacts {
			txErr = tx.CreateResponse(&Response{
				ID:          uuid.New(),
				PollID:      p.ID,
				MemberEmail: c.Email,
			})
			if txErr != nil {
				return txErr
			}
		}

		return nil
	})
	if err != nil {
		return CreateReport{}, err
	}

	report := CreateReport{Poll: p, Errors: []string{}}
	for _, c := range contacts {
		err = s.invite(ctx, tenantName, p, c)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", c.Email, err))
			continue
		}
		report.Sent++
	}

	return report, nil
}

func (s *Service) invite(ctx context.Context, tenantName string, p Poll, c org.Contact) error {
	var issued access.Issued
	err := s.inTx(ctx, func(tx Tx) error {
		req := access.Request{
			Purpose:    access.PurposePoll,
			Subject:    c.Email,
			TenantID:   uuid.NullUUID{UUID: p.TenantID, Valid: true},
			ContextRef: uuid.NullUUID{UUID: p.ID, Valid: true},
		}
		if p.ExpiresAt != nil {
			req.ExpiresAt = *p.ExpiresAt
		}

		var txErr error
		issued, txErr = s.tokens.Issue(tx, req)
		return txErr
	})
	if err != nil {
		return err
	}

	err = s.emailer.Send(ctx, TemplateInvitation, c.Email, InvitationEmail{
		TenantName: tenantName,
		Name:       c.Name,
		Question:   p.Question,
		ExpiresAt:  p.ExpiresAt,
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

// ListPolls lists the polls of a tenant, newest first.
func (s *Service) ListPolls(ctx context.Context, ref org.TenantRef) ([]Poll, error) {
	_, err := authz.Require(ctx, authz.ActionManagePolls, ref.TenantID)
	if err != nil {
		return nil, err
	}

	var polls []Poll
	err = s.inTx(ctx, func(tx Tx) error {
		var txErr error
		polls, txErr = tx.FindPolls(&PollFilter{TenantIDs: []uuid.UUID{ref.TenantID}})
		return txErr
	})
	return polls, err
}

// PollRef refers to a poll.
type PollRef struct {
	PollID uuid.UUID `json:"-" schema:"poll_id"`
}

// ClosePoll stops a poll from accepting responses.
func (s *Service) ClosePoll(ctx context.Context, ref PollRef) (Poll, error) {
	var p Poll
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		p, err = s.findManagedPoll(ctx, tx, ref.PollID)
		if err != nil {
			return err
		}

		if p.Status == StatusClosed {
			return nil
		}

		p.Status = StatusClosed
		p.UpdatedAt = s.NowFunc()
		return tx.UpdatePollStatus(p.ID, p.Status, p.UpdatedAt)
	})
	if err != nil {
		return Poll{}, err
	}

	return p, nil
}

// Results are the answers to a poll so far.
type Results struct {
	Poll    Poll           `json:"poll"`
	Tally   map[string]int `json:"tally"`
	Pending int            `json:"pending"`
	// Responses is only set for polls that are not anonymous.
	Responses []Response `json:"responses,omitempty"`
}

// Results tallies the responses to a poll.
func (s *Service) Results(ctx context.Context, ref PollRef) (Results, error) {
	var res Results
	err := s.inTx(ctx, func(tx Tx) error {
		p, err := s.findManagedPoll(ctx, tx, ref.PollID)
		if err != nil {
			return err
		}

		responses, err := tx.FindResponses(&ResponseFilter{PollIDs: []uuid.UUID{p.ID}})
		if err != nil {
			return err
		}

		res = tally(p, responses)
		return nil
	})
	if err != nil {
		return Results{}, err
	}

	return res, nil
}

func tally(p Poll, responses []Response) Results {
	res := Results{
		Poll:  p,
		Tally: make(map[string]int, len(p.Options)),
	}

	for _, o := range p.Options {
		res.Tally[o] = 0
	}

	for _, r := range responses {
		if r.Value == nil {
			res.Pending++
			continue
		}
		res.Tally[*r.Value]++
	}

	if !p.Anonymous {
		res.Responses = responses
	}

	return res
}

func (s *Service) findManagedPoll(ctx context.Context, tx Tx, id uuid.UUID) (Poll, error) {
	if authz.PrincipalFromContext(ctx) == nil {
		return Poll{}, errorz.ErrUnauthenticated
	}

	p, err := findPoll(tx, id)
	if err != nil {
		return Poll{}, err
	}

	_, err = authz.Require(ctx, authz.ActionManagePolls, p.TenantID)
	if err != nil {
		return Poll{}, err
	}

	return p, nil
}

func findPoll(tx Tx, id uuid.UUID) (Poll, error) {
	polls, err := tx.FindPolls(&PollFilter{IDs: []uuid.UUID{id}})
	if err != nil {
		return Poll{}, err
	}

	if len(polls) != 1 {
		return Poll{}, fmt.Errorf("poll %s: %w", id, errorz.ErrNotFound)
	}

	return polls[0], nil
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	return db.InTx(ctx, s.store.BeginTx, f)
}
