package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/nosgate/internal/game/relation"
)

// RelationRepository persists friend and blacklist entries. Each row is one
// directed edge; a friendship is two rows.
type RelationRepository struct {
	db *pgxpool.Pool
}

// NewRelationRepository creates a RelationRepository backed by the given pool.
func NewRelationRepository(db *pgxpool.Pool) *RelationRepository {
	return &RelationRepository{db: db}
}

// List returns every relation owned by characterID.
func (r *RelationRepository) List(ctx context.Context, characterID int64) ([]relation.Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT target_id, relation_type FROM character_relations
		WHERE character_id = $1 ORDER BY target_id`,
		characterID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing relations: %w", err)
	}
	defer rows.Close()

	out := make([]relation.Entry, 0)
	for rows.Next() {
		var (
			target int64
			typ    int16
		)
		if err := rows.Scan(&target, &typ); err != nil {
			return nil, fmt.Errorf("scanning relation row: %w", err)
		}
		out = append(out, relation.Entry{TargetID: target, Type: relation.Type(typ)})
	}
	return out, rows.Err()
}

// Upsert stores one or more directed edges in a single transaction, replacing
// the type of any existing edge between the same pair.
func (r *RelationRepository) Upsert(ctx context.Context, edges ...Edge) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, e := range edges {
			if _, err := tx.Exec(ctx, `
				INSERT INTO character_relations (character_id, target_id, relation_type)
				VALUES ($1, $2, $3)
				ON CONFLICT (character_id, target_id) DO UPDATE SET relation_type = EXCLUDED.relation_type`,
				e.CharacterID, e.TargetID, int16(e.Type),
			); err != nil {
				return fmt.Errorf("upserting relation %d->%d: %w", e.CharacterID, e.TargetID, err)
			}
		}
		return nil
	})
}

// Delete removes the directed edges between each pair, if present.
func (r *RelationRepository) Delete(ctx context.Context, edges ...Edge) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, e := range edges {
			if _, err := tx.Exec(ctx,
				`DELETE FROM character_relations WHERE character_id = $1 AND target_id = $2 AND relation_type = $3`,
				e.CharacterID, e.TargetID, int16(e.Type),
			); err != nil {
				return fmt.Errorf("deleting relation %d->%d: %w", e.CharacterID, e.TargetID, err)
			}
		}
		return nil
	})
}

// Edge is one directed relation row.
type Edge struct {
	CharacterID int64
	TargetID    int64
	Type        relation.Type
}

// Friendship returns the two edges that make a and b friends.
func Friendship(a, b int64) []Edge {
	return []Edge{
		{CharacterID: a, TargetID: b, Type: relation.Friend},
		{CharacterID: b, TargetID: a, Type: relation.Friend},
	}
}
