package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	defaultIdempotencyRetention = 24 * time.Hour
)

var ErrIdempotencyConflict = errors.New("idempotency key reused with a different payload")

// IdempotencyScope identifies one keyed mutation. Keys are private to the
// user that sent them.
type IdempotencyScope struct {
	TenantID string
	UserID   string
	Endpoint string
	Key      string
}

type IdempotencyRepo interface {
	Lookup(ctx context.Context, scope IdempotencyScope) (hash string, response json.RawMessage, found bool, err error)
	// Store reports false when a live entry with a different hash owns the key.
	Store(ctx context.Context, scope IdempotencyScope, hash string, response json.RawMessage) (bool, error)
}

// Idempotency replays the stored response of a keyed request. A nil
// *Idempotency or one without a repo never replays and never stores.
type Idempotency struct {
	repo IdempotencyRepo
}

func NewIdempotency(repo IdempotencyRepo) *Idempotency {
	return &Idempotency{repo: repo}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (i *Idempotency) enabled(scope IdempotencyScope) bool {
	return i != nil && i.repo != nil && scope.Key != ""
}

// Replay returns the response saved for scope. ErrIdempotencyConflict means
// the key was used before with a different body.
func (i *Idempotency) Replay(ctx context.Context, scope IdempotencyScope, body []byte) (json.RawMessage, bool, error) {
	if !i.enabled(scope) {
		return nil, false, nil
	}
	hash, stored, found, err := i.repo.Lookup(ctx, scope)
	if err != nil || !found {
		return nil, false, err
	}
	if hash != RequestHash(body) {
		return nil, false, ErrIdempotencyConflict
	}
	return stored, true, nil
}

func (i *Idempotency) Remember(ctx context.Context, scope IdempotencyScope, body []byte, response any) error {
	if !i.enabled(scope) {
		return nil
	}
	encoded, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode idempotent response: %w", err)
	}
	ok, err := i.repo.Store(ctx, scope, RequestHash(body), encoded)
	if err != nil {
		return err
	}
	if !ok {
		return ErrIdempotencyConflict
	}
	return nil
}

// PostgresIdempotencyRepo keeps keys in idempotency_keys. Entries older than
// the retention window are ignored and may be overwritten.
type PostgresIdempotencyRepo struct {
	db        *pgxpool.Pool
	retention time.Duration
	now       func() time.Time
}

func NewPostgresIdempotencyRepo(db *pgxpool.Pool, retention time.Duration) *PostgresIdempotencyRepo {
	if retention <= 0 {
		retention = defaultIdempotencyRetention
	}
	return &PostgresIdempotencyRepo{db: db, retention: retention, now: time.Now}
}

func (p *PostgresIdempotencyRepo) cutoff() time.Time {
	return p.now().Add(-p.retention)
}

func (p *PostgresIdempotencyRepo) Lookup(ctx context.Context, scope IdempotencyScope) (string, json.RawMessage, bool, error) {
	var hash string
	var stored json.RawMessage
	err := p.db.QueryRow(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE tenant_id = $1 AND user_id = $2 AND key = $3 AND endpoint = $4 AND created_at > $5
  `, scope.TenantID, scope.UserID, scope.Key, scope.Endpoint, p.cutoff()).Scan(&hash, &stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, err
	}
	return hash, stored, true, nil
}

func (p *PostgresIdempotencyRepo) Store(ctx context.Context, scope IdempotencyScope, hash string, response json.RawMessage) (bool, error) {
	tag, err := p.db.Exec(ctx, `
    INSERT INTO idempotency_keys (tenant_id, user_id, key, endpoint, request_hash, response_json)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (tenant_id, user_id, key, endpoint)
    DO UPDATE SET request_hash = EXCLUDED.request_hash, response_json = EXCLUDED.response_json, created_at = now()
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash OR idempotency_keys.created_at <= $7
  `, scope.TenantID, scope.UserID, scope.Key, scope.Endpoint, hash, response, p.cutoff())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
