package signup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/db"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/org"
)

var (
	// ErrFull indicates all seats of an opportunity are taken.
	ErrFull = fmt.Errorf("opportunity is full: %w", errorz.ErrConflict)
	// ErrStarted indicates an opportunity is no longer open for signups.
	ErrStarted = fmt.Errorf("opportunity has started: %w", errorz.ErrExpired)

	errRequired        = errors.New("required")
	errNotPositive     = errors.New("must be greater than zero")
	errNegative        = errors.New("can't be negative")
	errEndsBeforeStart = errors.New("must be after starts_at")
	errNotOpen         = errors.New("opportunity has started")
)

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data any) error
}

// Service manages projects, opportunities and signups.
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

// NewProject is the input for CreateProject.
type NewProject struct {
	TenantID    uuid.UUID `json:"-" schema:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

// CreateProject creates a project in a tenant.
func (s *Service) CreateProject(ctx context.Context, n NewProject) (Project, error) {
	_, err := authz.Require(ctx, authz.ActionManageProjects, n.TenantID)
	if err != nil {
		return Project{}, err
	}

	if n.Name == "" {
		return Project{}, errorz.InvalidInput{errorz.Keyed{Key: "name", Err: errRequired}}
	}

	p := Project{
		ID:          uuid.New(),
		TenantID:    n.TenantID,
		Name:        n.Name,
		Description: n.Description,
		CreatedAt:   s.NowFunc(),
	}

	err = s.inTx(ctx, func(tx Tx) error {
		return tx.CreateProject(&p)
	})
	if err != nil {
		return Project{}, err
	}

	return p, nil
}

// ListProjects lists the projects of a tenant.
func (s *Service) ListProjects(ctx context.Context, ref org.TenantRef) ([]Project, error) {
	_, err := authz.Require(ctx, authz.ActionManageProjects, ref.TenantID)
	if err != nil {
		return nil, err
	}

	var projects []Project
	err = s.inTx(ctx, func(tx Tx) error {
		var txErr error
		projects, txErr = tx.FindProjects(&ProjectFilter{TenantIDs: []uuid.UUID{ref.TenantID}})
		return txErr
	})
	return projects, err
}

// NewOpportunity is the input for CreateOpportunity.
type NewOpportunity struct {
	TenantID         uuid.UUID     `json:"-" schema:"tenant_id"`
	ProjectID        uuid.NullUUID `json:"project_id"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Location         string        `json:"location"`
	StartsAt         time.Time     `json:"starts_at"`
	EndsAt           time.Time     `json:"ends_at"`
	VolunteersNeeded int           `json:"volunteers_needed"`
}

func (n NewOpportunity) validate() error {
	var errs errorz.InvalidInput
	if n.Title == "" {
		errs = append(errs, errorz.Keyed{Key: "title", Err: errRequired})
	}
	if n.StartsAt.IsZero() {
		errs = append(errs, errorz.Keyed{Key: "starts_at", Err: errRequired})
	}
	if !n.EndsAt.After(n.StartsAt) {
		errs = append(errs, errorz.Keyed{Key: "ends_at", Err: errEndsBeforeStart})
	}
	if n.VolunteersNeeded <= 0 {
		errs = append(errs, errorz.Keyed{Key: "volunteers_needed", Err: errNotPositive})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CreateOpportunity creates an opportunity, optionally as part of a project.
func (s *Service) CreateOpportunity(ctx context.Context, n NewOpportunity) (Opportunity, error) {
	_, err := authz.Require(ctx, authz.ActionManageOpportunities, n.TenantID)
	if err != nil {
		return Opportunity{}, err
	}

	err = n.validate()
	if err != nil {
		return Opportunity{}, err
	}

	now := s.NowFunc()
	o := Opportunity{
		ID:               uuid.New(),
		TenantID:         n.TenantID,
		ProjectID:        n.ProjectID,
		Title:            n.Title,
		Description:      n.Description,
		Location:         n.Location,
		StartsAt:         n.StartsAt,
		EndsAt:           n.EndsAt,
		VolunteersNeeded: n.VolunteersNeeded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.inTx(ctx, func(tx Tx) error {
		if o.ProjectID.Valid {
			projects, txErr := tx.FindProjects(&ProjectFilter{
				IDs:       []uuid.UUID{o.ProjectID.UUID},
				TenantIDs: []uuid.UUID{o.TenantID},
			})
			if txErr != nil {
				return txErr
			}

			if len(projects) != 1 {
				return errorz.InvalidInput{errorz.Keyed{Key: "project_id", Err: errorz.ErrNotFound}}
			}
		}

		return tx.CreateOpportunity(&o)
	})
	if err != nil {
		return Opportunity{}, err
	}

	return o, nil
}

// ListOpportunities lists the opportunities of a tenant ordered by start time.
func (s *Service) ListOpportunities(ctx context.Context, ref org.TenantRef) ([]Opportunity, error) {
	_, err := authz.Require(ctx, authz.ActionManageOpportunities, ref.TenantID)
	if err != nil {
		return nil, err
	}

	var opps []Opportunity
	err = s.inTx(ctx, func(tx Tx) error {
		var txErr error
		opps, txErr = tx.FindOpportunities(&OpportunityFilter{TenantIDs: []uuid.UUID{ref.TenantID}})
		return txErr
	})
	return opps, err
}

// OpportunityRef refers to an opportunity.
type OpportunityRef struct {
	OpportunityID uuid.UUID `json:"-" schema:"opportunity_id"`
}

// ListSignups lists the signups of an opportunity, including cancelled ones.
func (s *Service) ListSignups(ctx context.Context, ref OpportunityRef) ([]Signup, error) {
	var signups []Signup
	err := s.inTx(ctx, func(tx Tx) error {
		o, err := s.findManagedOpportunity(ctx, tx, ref.OpportunityID)
		if err != nil {
			return err
		}

		signups, err = tx.FindSignups(&SignupFilter{OpportunityIDs: []uuid.UUID{o.ID}})
		return err
	})
	return signups, err
}

// SignupRef refers to a signup.
type SignupRef struct {
	SignupID uuid.UUID `json:"-" schema:"signup_id"`
}

// CancelSignup cancels a confirmed signup and releases its seat.
// Cancelling a cancelled signup does nothing.
func (s *Service) CancelSignup(ctx context.Context, ref SignupRef) (Signup, error) {
	var su Signup
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		su, err = s.findManagedSignup(ctx, tx, ref.SignupID)
		if err != nil {
			return err
		}

		if su.Status == StatusCancelled {
			return nil
		}

		now := s.NowFunc()
		su.Status = StatusCancelled
		su.UpdatedAt = now

		err = tx.UpdateSignup(&su)
		if err != nil {
			return err
		}

		return tx.ReleaseSeat(su.OpportunityID, now)
	})
	if err != nil {
		return Signup{}, err
	}

	return su, nil
}

// HoursInput is the input for RecordHours.
type HoursInput struct {
	SignupID uuid.UUID `json:"-" schema:"signup_id"`
	Hours    float64   `json:"hours"`
}

// RecordHours records the hours a member volunteered for a confirmed signup.
func (s *Service) RecordHours(ctx context.Context, in HoursInput) (Signup, error) {
	if in.Hours < 0 {
		return Signup{}, errorz.InvalidInput{errorz.Keyed{Key: "hours", Err: errNegative}}
	}

	var su Signup
	err := s.inTx(ctx, func(tx Tx) error {
		var err error
		su, err = s.findManagedSignup(ctx, tx, in.SignupID)
		if err != nil {
			return err
		}

		if su.Status != StatusConfirmed {
			return fmt.Errorf("signup %s is %s: %w", su.ID, su.Status, errorz.ErrConflict)
		}

		hours := in.Hours
		su.Hours = &hours
		su.UpdatedAt = s.NowFunc()

		return tx.UpdateSignup(&su)
	})
	if err != nil {
		return Signup{}, err
	}

	return su, nil
}

func (s *Service) findManagedOpportunity(ctx context.Context, tx Tx, id uuid.UUID) (Opportunity, error) {
	if authz.PrincipalFromContext(ctx) == nil {
		return Opportunity{}, errorz.ErrUnauthenticated
	}

	o, err := findOpportunity(tx, id)
	if err != nil {
		return Opportunity{}, err
	}

	_, err = authz.Require(ctx, authz.ActionManageOpportunities, o.TenantID)
	if err != nil {
		return Opportunity{}, err
	}

	return o, nil
}

func (s *Service) findManagedSignup(ctx context.Context, tx Tx, id uuid.UUID) (Signup, error) {
	if authz.PrincipalFromContext(ctx) == nil {
		return Signup{}, errorz.ErrUnauthenticated
	}

	signups, err := tx.FindSignups(&SignupFilter{IDs: []uuid.UUID{id}})
	if err != nil {
		return Signup{}, err
	}

	if len(signups) != 1 {
		return Signup{}, fmt.Errorf("signup %s: %w", id, errorz.ErrNotFound)
	}

	_, err = authz.Require(ctx, authz.ActionManageOpportunities, signups[0].TenantID)
	if err != nil {
		return Signup{}, err
	}

	return signups[0], nil
}

func findOpportunity(tx Tx, id uuid.UUID) (Opportunity, error) {
	opps, err := tx.FindOpportunities(&OpportunityFilter{IDs: []uuid.UUID{id}})
	if err != nil {
		return Opportunity{}, err
	}

	if len(opps) != 1 {
		return Opportunity{}, fmt.Errorf("opportunity %s: %w", id, errorz.ErrNotFound)
	}

	return opps[0], nil
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	return db.InTx(ctx, s.store.BeginTx, f)
}
