package poll

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/access"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/org"
)

// Kind is the kind of answers a poll accepts.
type Kind string

const (
	KindYesNo   Kind = "yes_no"
	KindOptions Kind = "options"
)

// Status is the status of a poll.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Poll is a question sent to (a part of) the members of a tenant.
// Anonymous can't change after creation.
type Poll struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	Question      string     `json:"question"`
	Kind          Kind       `json:"kind"`
	Options       []string   `json:"options"`
	Anonymous     bool       `json:"anonymous"`
	Status        Status     `json:"status"`
	ExpiresAt     *time.Time `json:"expires_at"`
	ResponseCount int        `json:"response_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Open reports whether responses are accepted at the given time.
func (p Poll) Open(now time.Time) bool {
	if p.Status != StatusActive {
		return false
	}

	return p.ExpiresAt == nil || !now.After(*p.ExpiresAt)
}

// Accepts reports whether v is a valid answer.
func (p Poll) Accepts(v string) bool {
	return slices.Contains(p.Options, v)
}

// Response is the answer of a single member. Rows are created when the
// poll is created, Value stays nil until the member responds.
type Response struct {
	ID          uuid.UUID     `json:"id"`
	PollID      uuid.UUID     `json:"poll_id"`
	MemberEmail email.Address `json:"member_email"`
	Value       *string       `json:"response"`
	RespondedAt *time.Time    `json:"responded_at"`
	UpdatedAt   *time.Time    `json:"updated_at"`
}

// PollFilter is used to filter polls.
// Returned polls must match all the provided fields.
// If a field is empty or nil, it's ignored.
type PollFilter struct {
	IDs       []uuid.UUID
	TenantIDs []uuid.UUID
	Statuses  []Status
}

// ResponseFilter is used to filter responses.
type ResponseFilter struct {
	PollIDs      []uuid.UUID
	MemberEmails []email.Address
}

// Store provides access to the poll store.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a transaction. If an error occurs on any of the Create/Update/Find methods,
// the transaction is considered to have failed and should be rolled back.
// Tx is not safe for concurrent use.
type Tx interface {
	access.Tx
	org.Directory

	CreatePoll(p *Poll) error
	UpdatePollStatus(id uuid.UUID, status Status, at time.Time) error
	FindPolls(filter *PollFilter) ([]Poll, error)
	// IncrementResponseCount atomically adds one to the response count.
	IncrementResponseCount(pollID uuid.UUID, at time.Time) error

	CreateResponse(r *Response) error
	FindResponses(filter *ResponseFilter) ([]Response, error)
	// RecordFirstResponse sets the value and responded_at of a response
	// that has no responded_at yet. It returns errorz.ErrConflict otherwise.
	RecordFirstResponse(id uuid.UUID, value string, at time.Time) error
	// UpdateResponse changes the value of a response and sets updated_at.
	UpdateResponse(id uuid.UUID, value string, at time.Time) error
}
