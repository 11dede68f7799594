package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/db"
	"github.com/willemschots/volunteerhub/internal/errorz"
	"github.com/willemschots/volunteerhub/internal/signup"
)

// CreateProject stores a new project.
func (t *Tx) CreateProject(p *signup.Project) error {
	if p.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO projects (id, tenant_id, name, description, created_at) VALUES (`)
	q.Params(p.ID, p.TenantID, p.Name, p.Description, utc(p.CreatedAt))
	q.Unsafe(`)`)

	_, err := t.exec(&q)
	return err
}

// FindProjects queries for projects based on the provided filter.
func (t *Tx) FindProjects(f *signup.ProjectFilter) ([]signup.Project, error) {
	var q db.Query
	q.Unsafe(`SELECT id, tenant_id, name, description, created_at FROM projects WHERE 1=1`)

	db.In(&q, "id", f.IDs)
	db.In(&q, "tenant_id", f.TenantIDs)

	q.Unsafe(` ORDER BY name ASC`)

	return query(t, &q, func(rows *sql.Rows) (signup.Project, error) {
		var p signup.Project
		err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.CreatedAt)
		return p, err
	})
}

// CreateOpportunity stores a new opportunity.
func (t *Tx) CreateOpportunity(o *signup.Opportunity) error {
	if o.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO opportunities (id, tenant_id, project_id, title, description, location, starts_at, ends_at, volunteers_needed, confirmed_count, created_at, updated_at) VALUES (`)
	q.Params(o.ID, o.TenantID, o.ProjectID, o.Title, o.Description, o.Location, utc(o.StartsAt), utc(o.EndsAt), o.VolunteersNeeded, o.ConfirmedCount, utc(o.CreatedAt), utc(o.UpdatedAt))
	q.Unsafe(`)`)

	_, err := t.exec(&q)
	return err
}

// FindOpportunities queries for opportunities based on the provided filter.
// Opportunities are ordered by start time.
func (t *Tx) FindOpportunities(f *signup.OpportunityFilter) ([]signup.Opportunity, error) {
	var q db.Query
	q.Unsafe(`SELECT id, tenant_id, project_id, title, description, location, starts_at, ends_at, volunteers_needed, confirmed_count, created_at, updated_at FROM opportunities WHERE 1=1`)

	db.In(&q, "id", f.IDs)
	db.In(&q, "tenant_id", f.TenantIDs)
	db.In(&q, "project_id", f.ProjectIDs)

	q.Unsafe(` ORDER BY starts_at ASC, id ASC`)

	return query(t, &q, func(rows *sql.Rows) (signup.Opportunity, error) {
		var o signup.Opportunity
		err := rows.Scan(&o.ID, &o.TenantID, &o.ProjectID, &o.Title, &o.Description, &o.Location, &o.StartsAt, &o.EndsAt, &o.VolunteersNeeded, &o.ConfirmedCount, &o.CreatedAt, &o.UpdatedAt)
		return o, err
	})
}

// ReserveSeat takes a seat on the opportunity in a single conditional write.
func (t *Tx) ReserveSeat(opportunityID uuid.UUID, at time.Time) error {
	var q db.Query
	q.Unsafe(`UPDATE opportunities SET confirmed_count = confirmed_count + 1, updated_at = `)
	q.Param(utc(at))
	q.Unsafe(` WHERE confirmed_count < volunteers_needed AND id = `)
	q.Param(opportunityID)

	rows, err := t.exec(&q)
	if err != nil {
		return err
	}

	if rows == 0 {
		return fmt.Errorf("no seat left on opportunity %s: %w", opportunityID, errorz.ErrConflict)
	}

	return nil
}

// ReleaseSeat gives back a seat on the opportunity.
func (t *Tx) ReleaseSeat(opportunityID uuid.UUID, at time.Time) error {
	var q db.Query
	q.Unsafe(`UPDATE opportunities SET confirmed_count = confirmed_count - 1, updated_at = `)
	q.Param(utc(at))
	q.Unsafe(` WHERE confirmed_count > 0 AND id = `)
	q.Param(opportunityID)

	return t.execOne(&q, "reserved seat")
}

// CreateSignup stores a new signup.
func (t *Tx) CreateSignup(s *signup.Signup) error {
	if s.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO signups (id, tenant_id, opportunity_id, member_email, member_name, status, hours, created_at, updated_at) VALUES (`)
	q.Params(s.ID, s.TenantID, s.OpportunityID, s.MemberEmail, s.MemberName, s.Status, s.Hours, utc(s.CreatedAt), utc(s.UpdatedAt))
	q.Unsafe(`)`)

	_, err := t.exec(&q)
	return err
}

// UpdateSignup updates the mutable fields of a signup.
// It returns errorz.ErrNotFound if no signup is found.
func (t *Tx) UpdateSignup(s *signup.Signup) error {
	var q db.Query
	q.Unsafe(`UPDATE signups SET member_name = `)
	q.Param(s.MemberName)

	q.Unsafe(`, status = `)
	q.Param(s.Status)

	q.Unsafe(`, hours = `)
	q.Param(s.Hours)

	q.Unsafe(`, updated_at = `)
	q.Param(utc(s.UpdatedAt))

	q.Unsafe(` WHERE id = `)
	q.Param(s.ID)

	return t.execOne(&q, "signup")
}

// FindSignups queries for signups based on the provided filter.
func (t *Tx) FindSignups(f *signup.SignupFilter) ([]signup.Signup, error) {
	var q db.Query
	q.Unsafe(`SELECT id, tenant_id, opportunity_id, member_email, member_name, status, hours, created_at, updated_at FROM signups WHERE 1=1`)

	db.In(&q, "id", f.IDs)
	db.In(&q, "tenant_id", f.TenantIDs)
	db.In(&q, "opportunity_id", f.OpportunityIDs)
	db.In(&q, "member_email", f.MemberEmails)
	db.In(&q, "status", f.Statuses)

	q.Unsafe(` ORDER BY created_at ASC, id ASC`)

	return query(t, &q, func(rows *sql.Rows) (signup.Signup, error) {
		var s signup.Signup
		err := rows.Scan(&s.ID, &s.TenantID, &s.OpportunityID, &s.MemberEmail, &s.MemberName, &s.Status, &s.Hours, &s.CreatedAt, &s.UpdatedAt)
		return s, err
	})
}
