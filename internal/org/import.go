package org

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/willemschots/volunteerhub/internal/authz"
	"github.com/willemschots/volunteerhub/internal/email"
	"github.com/willemschots/volunteerhub/internal/errorz"
)

var errMissingEmailColumn = errors.New("header has no email column")

// MemberImport is the input for ImportMembers. CSV should contain a header
// row with an "email" column and optional "name" and "phone" columns.
type MemberImport struct {
	TenantID uuid.UUID `json:"-" schema:"tenant_id"`
	CSV      io.Reader `json:"-" schema:"-"`
}

// ImportReport summarizes the result of an import.
type ImportReport struct {
	Succeeded int      `json:"succeeded"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// ImportMembers adds the members in a CSV file to a tenant. Rows with an
// email address that is already in the tenant are skipped, malformed rows
// and rows with an invalid address are reported as failed. Only a missing
// or unusable header rejects the whole file.
func (s *Service) ImportMembers(ctx context.Context, in MemberImport) (ImportReport, error) {
	_, err := authz.Require(ctx, authz.ActionManageMembers, in.TenantID)
	if err != nil {
		return ImportReport{}, err
	}

	if in.CSV == nil {
		return ImportReport{}, errorz.InvalidInput{errorz.Keyed{Key: "csv", Err: errRequired}}
	}

	r := csv.NewReader(in.CSV)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return ImportReport{}, errorz.InvalidInput{errorz.Keyed{Key: "csv", Err: err}}
	}

	// Spreadsheets prefix "CSV UTF-8" exports with a byte order mark.
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}

	if _, ok := cols["email"]; !ok {
		return ImportReport{}, errorz.InvalidInput{errorz.Keyed{Key: "csv", Err: errMissingEmailColumn}}
	}

	report := ImportReport{Errors: []string{}}
	err = s.inTx(ctx, func(tx Tx) error {
		existing, txErr := tx.FindMembers(&MemberFilter{TenantIDs: []uuid.UUID{in.TenantID}})
		if txErr != nil {
			return txErr
		}

		seen := make(map[email.Address]bool, len(existing))
		for _, m := range existing {
			seen[m.Email] = true
		}

		for {
			record, txErr := r.Read()
			if errors.Is(txErr, io.EOF) {
				return nil
			}

			var parseErr *csv.ParseError
			if errors.As(txErr, &parseErr) {
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("line %d: %v", parseErr.StartLine, parseErr.Err))
				continue
			}

			if txErr != nil {
				return txErr
			}
			line, _ := r.FieldPos(0)

			addr, txErr := email.ParseAddress(field(record, cols, "email"))
			if txErr != nil {
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("line %d: %v", line, txErr))
				continue
			}

			if seen[addr] {
				report.Skipped++
				continue
			}
			seen[addr] = true

			now := s.NowFunc()
			txErr = tx.CreateMember(&Member{
				ID:        uuid.New(),
				TenantID:  uuid.NullUUID{UUID: in.TenantID, Valid: true},
				Email:     addr,
				Name:      field(record, cols, "name"),
				Phone:     field(record, cols, "phone"),
				Role:      authz.RoleMember,
				CreatedAt: now,
				UpdatedAt: now,
			})
			if txErr != nil {
				return txErr
			}

			report.Succeeded++
		}
	})
	if err != nil {
		return ImportReport{}, err
	}

	return report, nil
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
