package postgres

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"

	"dinein-service/internal/dining"
)

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil))
	assert.ErrorIs(t, mapErr(pgx.ErrNoRows), dining.ErrNoRows)
	assert.ErrorIs(t, mapErr(fmt.Errorf("scan: %w", pgx.ErrNoRows)), dining.ErrNoRows)

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "dining_sessions_one_active_per_table"}
	err := mapErr(dup)
	assert.ErrorIs(t, err, dining.ErrDuplicate)
	assert.Contains(t, err.Error(), "dining_sessions_one_active_per_table")

	other := errors.New("connection reset")
	assert.Equal(t, other, mapErr(other))
}

func TestToDecimal(t *testing.T) {
	assert.Equal(t, "267.50", toDecimal(pgtype.Numeric{Int: big.NewInt(26750), Exp: -2, Valid: true}).StringFixed(2))
	assert.Equal(t, "1200.00", toDecimal(pgtype.Numeric{Int: big.NewInt(12), Exp: 2, Valid: true}).StringFixed(2))
	assert.True(t, toDecimal(pgtype.Numeric{}).IsZero())
}

func TestExecOne(t *testing.T) {
	assert.ErrorIs(t, execOne(pgconn.NewCommandTag("UPDATE 0"), nil), dining.ErrNoRows)
	assert.NoError(t, execOne(pgconn.NewCommandTag("UPDATE 1"), nil))
}
