package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paydesk/internal/domain/payroll"
	"paydesk/internal/platform/config"
)

// Seed makes sure the configured tenant exists and has statutory rates and
// an active PAYE table. Existing configuration is left alone.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	tenantID, err := ensureTenant(ctx, pool, cfg.SeedTenantName)
	if err != nil {
		return err
	}

	store := payroll.NewStore(pool)
	settings, err := store.LoadSettings(ctx, tenantID)
	if err != nil {
		return err
	}
	if len(settings) == 0 {
		if err := store.SaveSettings(ctx, tenantID, payroll.DefaultStatutoryRates().Settings()); err != nil {
			return err
		}
	}

	brackets, err := store.ActiveBrackets(ctx, tenantID)
	if err != nil {
		return err
	}
	if len(brackets) == 0 {
		if err := store.ReplaceBrackets(ctx, tenantID, payroll.DefaultTaxBrackets()); err != nil {
			return err
		}
		slog.Info("seeded default tax brackets", "tenantId", tenantID)
	}
	return nil
}

func ensureTenant(ctx context.Context, pool *pgxpool.Pool, name string) (string, error) {
	var id string
	err := pool.QueryRow(ctx, "SELECT id::text FROM tenants WHERE name = $1", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	err = pool.QueryRow(ctx, "INSERT INTO tenants (name) VALUES ($1) RETURNING id::text", name).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}
