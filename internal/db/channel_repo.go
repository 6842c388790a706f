package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"certsentry/internal/types"
)

// ChannelRepository provides read access to channel instances and their
// per-type parameters and secrets. Secret values come back as stored, i.e.
// still encrypted; decryption is the caller's job.
type ChannelRepository struct {
	db DBTX
}

// NewChannelRepository creates a ChannelRepository backed by the given
// database connection (pool or transaction).
func NewChannelRepository(db DBTX) *ChannelRepository {
	return &ChannelRepository{db: db}
}

var _ types.ChannelRepository = (*ChannelRepository)(nil)

// GetChannel retrieves one channel instance by ID. Soft-deleted rows are
// returned with DeletedAt set rather than filtered out: the orchestrator
// reports "channel is disabled" per channel instead of failing the lookup,
// which keeps the audit note accurate.
func (r *ChannelRepository) GetChannel(ctx context.Context, id string) (*types.ChannelInstance, error) {
	row := r.db.QueryRow(ctx,
		`SELECT ch.id, ch.name, ch.type, ch.enabled, ch.deleted_at, ch.created_at, ch.updated_at
		 FROM channels ch
		 WHERE ch.id = $1`,
		id,
	)

	var ch types.ChannelInstance
	err := row.Scan(
		&ch.ID,
		&ch.Name,
		&ch.Type,
		&ch.Enabled,
		&ch.DeletedAt,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundChannel, "channel not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve channel", err)
	}
	if !types.ValidChannelType(ch.Type) {
		return nil, types.NewAppError(types.ErrCodeValidationChannel,
			fmt.Sprintf("channel %s has unknown type %q", ch.ID, ch.Type), nil)
	}
	return &ch, nil
}

// GetChannelParams returns the channel's non-secret parameters as a
// name-to-value map.
func (r *ChannelRepository) GetChannelParams(ctx context.Context, id string) (map[string]string, error) {
	return r.nameValueMap(ctx,
		`SELECT p.name, p.value
		 FROM channel_params p
		 WHERE p.channel_id = $1`,
		id, "failed to load channel params")
}

// GetChannelSecrets returns the channel's secrets as a name-to-ciphertext
// map. Values are encrypted at rest and stay encrypted here.
func (r *ChannelRepository) GetChannelSecrets(ctx context.Context, id string) (map[string]string, error) {
	return r.nameValueMap(ctx,
		`SELECT s.name, s.ciphertext
		 FROM channel_secrets s
		 WHERE s.channel_id = $1`,
		id, "failed to load channel secrets")
}

func (r *ChannelRepository) nameValueMap(ctx context.Context, sql, id, errMsg string) (map[string]string, error) {
	rows, err := r.db.Query(ctx, sql, id)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, errMsg, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, errMsg, err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, errMsg, err)
	}
	return out, nil
}
