package psql

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/duynhne/mc-profile-service/internal/core/domain"
)

func TestMapWriteError_UniqueViolation(t *testing.T) {
	err := mapWriteError(&pgconn.PgError{Code: "23505", ConstraintName: "mc_profiles_slug_key"})
	if !errors.Is(err, domain.ErrSlugTaken) {
		t.Fatalf("expected ErrSlugTaken, got %v", err)
	}
}

func TestMapWriteError_Passthrough(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "mc_photos_order_idx"}
	if out := mapWriteError(dup); errors.Is(out, domain.ErrSlugTaken) {
		t.Fatalf("order index conflict must not be reported as a slug conflict")
	}
	in := &pgconn.PgError{Code: "23503"}
	if out := mapWriteError(in); out != error(in) {
		t.Fatalf("expected passthrough, got %v", out)
	}
	boom := errors.New("boom")
	if out := mapWriteError(boom); out != boom {
		t.Fatalf("expected passthrough, got %v", out)
	}
}
