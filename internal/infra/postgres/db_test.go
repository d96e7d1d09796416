package postgres

import (
	"errors"
	"fmt"
	"testing"

	"avtotest-service/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

func TestMapErr(t *testing.T) {
	other := errors.New("boom")
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, domain.ErrTicketNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), domain.ErrTicketNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, domain.ErrAlreadyExists},
		{"other pg error", &pgconn.PgError{Code: "23503"}, nil},
		{"other", other, other},
	}
	for _, tc := range cases {
		got := mapErr(tc.in, domain.ErrTicketNotFound)
		if tc.want == nil {
			if tc.in == nil && got != nil {
				t.Fatalf("%s: expected nil, got %v", tc.name, got)
			}
			if tc.in != nil && got != tc.in {
				t.Fatalf("%s: expected error passed through, got %v", tc.name, got)
			}
			continue
		}
		if !errors.Is(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestSlotColumns(t *testing.T) {
	if ids, limit := slotColumns(domain.DeviceMobile); ids != "mobile_device_ids" || limit != "mobile_limit" {
		t.Fatalf("unexpected mobile columns %s %s", ids, limit)
	}
	if ids, limit := slotColumns(domain.DevicePC); ids != "pc_device_ids" || limit != "pc_limit" {
		t.Fatalf("unexpected pc columns %s %s", ids, limit)
	}
}
