package signup

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/org"
)

// Project groups related opportunities.
type Project struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Opportunity is a moment where a tenant needs volunteers.
type Opportunity struct {
	ID               uuid.UUID     `json:"id"`
	TenantID         uuid.UUID     `json:"tenant_id"`
	ProjectID        uuid.NullUUID `json:"project_id"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Location         string        `json:"location"`
	StartsAt         time.Time     `json:"starts_at"`
	EndsAt           time.Time     `json:"ends_at"`
	VolunteersNeeded int           `json:"volunteers_needed"`
	ConfirmedCount   int           `json:"confirmed_count"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Open reports whether members can still sign up at the given time.
func (o Opportunity) Open(now time.Time) bool {
	return now.Before(o.StartsAt)
}

// Full reports whether all seats are taken.
func (o Opportunity) Full() bool {
	return o.ConfirmedCount >= o.VolunteersNeeded
}

// Status is the status of a signup.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Signup is a member taking a seat on an opportunity.
type Signup struct {
	ID            uuid.UUID     `json:"id"`
	TenantID      uuid.UUID     `json:"tenant_id"`
	OpportunityID uuid.UUID     `json:"opportunity_id"`
	MemberEmail   email.Address `json:"member_email"`
	MemberName    string        `json:"member_name"`
	Status        Status        `json:"status"`
	Hours         *float64      `json:"hours"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ProjectFilter is used to filter projects.
// Returned projects must match all the provided fields.
// If a field is empty or nil, it's ignored.
type ProjectFilter struct {
	IDs       []uuid.UUID
	TenantIDs []uuid.UUID
}

// OpportunityFilter is used to filter opportunities.
type OpportunityFilter struct {
	IDs        []uuid.UUID
	TenantIDs  []uuid.UUID
	ProjectIDs []uuid.UUID
}

// SignupFilter is used to filter signups.
type SignupFilter struct {
	IDs            []uuid.UUID
	TenantIDs      []uuid.UUID
	OpportunityIDs []uuid.UUID
	MemberEmails   []email.Address
	Statuses       []Status
}

// Store provides access to the signup store.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a transaction. If an error occurs on any of the Create/Update/Find methods,
// the transaction is considered to have failed and should be rolled back.
// Tx is not safe for concurrent use.
type Tx interface {
	access.Tx
	org.Directory

	CreateProject(p *Project) error
	FindProjects(filter *ProjectFilter) ([]Project, error)

	CreateOpportunity(o *Opportunity) error
	FindOpportunities(filter *OpportunityFilter) ([]Opportunity, error)
	// ReserveSeat increments the confirmed count if a seat is available.
	// It returns errorz.ErrConflict when the opportunity is full.
	ReserveSeat(opportunityID uuid.UUID, at time.Time) error
	// ReleaseSeat decrements the confirmed count.
	ReleaseSeat(opportunityID uuid.UUID, at time.Time) error

	CreateSignup(s *Signup) error
	UpdateSignup(s *Signup) error
	FindSignups(filter *SignupFilter) ([]Signup, error)
}
