package payroll

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

// Numeric columns travel as text in both directions so no precision is lost
// on the way in or out of PostgreSQL.

func parseDecimal(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(raw)
}

func parseNullDecimal(raw *string) (decimal.NullDecimal, error) {
	if raw == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func nullDecimalParam(value decimal.NullDecimal) any {
	if !value.Valid {
		return nil
	}
	return value.Decimal.String()
}
