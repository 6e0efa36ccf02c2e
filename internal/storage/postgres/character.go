package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/nosgate/internal/game/character"
)

// ErrCharacterNotFound is returned when a character lookup yields no results.
var ErrCharacterNotFound = errors.New("character not found")

// ErrCharacterNameTaken is returned when creating a character with a name already in use.
var ErrCharacterNameTaken = errors.New("character name already taken")

// CharacterRepository provides character persistence operations.
type CharacterRepository struct {
	db *pgxpool.Pool
}

// NewCharacterRepository creates a CharacterRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewCharacterRepository(db *pgxpool.Pool) *CharacterRepository {
	return &CharacterRepository{db: db}
}

// Authority lives on the account, so every read joins it in.
const characterSelect = `
	SELECT c.id, c.account_id, c.name, c.level, c.faction, c.reputation,
	       a.authority, c.map_id, c.direction, c.options
	FROM characters c JOIN accounts a ON a.id = c.account_id`

func scanCharacter(row pgx.Row) (character.Record, error) {
	var (
		rec     character.Record
		faction int16
		opts    []int32
	)
	err := row.Scan(&rec.ID, &rec.AccountID, &rec.Name, &rec.Level, &faction,
		&rec.Reputation, &rec.Authority, &rec.MapID, &rec.Direction, &opts)
	if err != nil {
		return character.Record{}, err
	}
	rec.Faction = character.Faction(faction)
	rec.Options = make([]character.Option, 0, len(opts))
	for _, o := range opts {
		rec.Options = append(rec.Options, character.Option(o))
	}
	return rec, nil
}

func optionsParam(opts []character.Option) []int32 {
	out := make([]int32, 0, len(opts))
	for _, o := range opts {
		out = append(out, int32(o))
	}
	return out
}

// Create inserts a new character.
//
// Precondition: rec.AccountID must reference an existing account; rec.Name must be non-empty.
// Postcondition: Returns the stored record with ID set, or ErrCharacterNameTaken on duplicate.
func (r *CharacterRepository) Create(ctx context.Context, rec character.Record) (character.Record, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO characters (account_id, name, level, faction, reputation, map_id, direction, options)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`,
		rec.AccountID, rec.Name, rec.Level, int16(rec.Faction), rec.Reputation,
		rec.MapID, rec.Direction, optionsParam(rec.Options),
	).Scan(&id)
	if err != nil {
		if isDuplicateKeyError(err) {
			return character.Record{}, ErrCharacterNameTaken
		}
		return character.Record{}, fmt.Errorf("inserting character: %w", err)
	}
	return r.GetByID(ctx, id)
}

// ListByAccount returns all characters for the given account ID, oldest first.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *CharacterRepository) ListByAccount(ctx context.Context, accountID int64) ([]character.Record, error) {
	rows, err := r.db.Query(ctx, characterSelect+` WHERE c.account_id = $1 ORDER BY c.created_at ASC, c.id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	defer rows.Close()

	recs := make([]character.Record, 0)
	for rows.Next() {
		rec, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning character row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetByID retrieves a character by its primary key.
//
// Postcondition: Returns the record or ErrCharacterNotFound.
func (r *CharacterRepository) GetByID(ctx context.Context, id int64) (character.Record, error) {
	return r.getOne(ctx, characterSelect+` WHERE c.id = $1`, id)
}

// GetByName retrieves a character by its exact name.
//
// Postcondition: Returns the record or ErrCharacterNotFound.
func (r *CharacterRepository) GetByName(ctx context.Context, name string) (character.Record, error) {
	return r.getOne(ctx, characterSelect+` WHERE c.name = $1`, name)
}

func (r *CharacterRepository) getOne(ctx context.Context, query string, arg any) (character.Record, error) {
	rec, err := scanCharacter(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return character.Record{}, ErrCharacterNotFound
		}
		return character.Record{}, fmt.Errorf("querying character: %w", err)
	}
	return rec, nil
}

// SaveState persists the mutable in-play state of a character: map,
// direction, options and reputation.
//
// Postcondition: Returns nil on success, ErrCharacterNotFound if no row updated.
func (r *CharacterRepository) SaveState(ctx context.Context, rec character.Record) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE characters
		SET map_id = $2, direction = $3, options = $4, reputation = $5, updated_at = NOW()
		WHERE id = $1`,
		rec.ID, rec.MapID, rec.Direction, optionsParam(rec.Options), rec.Reputation,
	)
	if err != nil {
		return fmt.Errorf("saving character state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCharacterNotFound
	}
	return nil
}
