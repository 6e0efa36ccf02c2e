package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/nosgate/internal/game/character"
	"github.com/cory-johannsen/nosgate/internal/game/session"
	"github.com/cory-johannsen/nosgate/internal/storage/postgres"
)

// MaxCharacters is the number of character slots per account.
const MaxCharacters = 4

// selectCharacter lists the account's characters and handles select and
// Char_NEW lines until one is selected.
//
// Postcondition: Returns true once s has a character, false when the client
// quit, or an error when the connection failed.
func (g *Gateway) selectCharacter(ctx context.Context, conn LineConn, s *session.Session) (bool, error) {
	recs, err := g.listCharacters(ctx, s.AccountID())
	if err != nil {
		return false, err
	}
	g.sendCharacterList(s, recs)

	for {
		fields, err := g.readFields(ctx, conn, s)
		if err != nil {
			return false, err
		}
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "quit":
			return false, nil
		case "select":
			if g.selectSlot(ctx, s, recs, fields[1:]) {
				return true, nil
			}
		case "char_new":
			created, ok := g.createCharacter(ctx, s, len(recs), fields[1:])
			if !ok {
				continue
			}
			recs = append(recs, created)
			g.sendCharacterList(s, recs)
		default:
			_ = s.SendLine(fail(failUnknownCommand))
		}
	}
}

func (g *Gateway) listCharacters(ctx context.Context, accountID int64) ([]character.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	recs, err := g.characters.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	return recs, nil
}

// sendCharacterList writes clist_start, one clist line per slot, clist_end.
func (g *Gateway) sendCharacterList(s *session.Session, recs []character.Record) {
	_ = s.SendLine("clist_start 0")
	for slot, rec := range recs {
		_ = s.SendLine(fmt.Sprintf("clist %d %s %d %d", slot, rec.Name, rec.Level, rec.Faction))
	}
	_ = s.SendLine("clist_end")
}

func (g *Gateway) selectSlot(ctx context.Context, s *session.Session, recs []character.Record, args []string) bool {
	if len(args) != 1 {
		_ = s.SendLine(fail(failUsage))
		return false
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil || slot < 0 || slot >= len(recs) {
		_ = s.SendLine(fail(failInvalidSlot))
		return false
	}
	rec := recs[slot]

	lctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	entries, err := g.relations.List(lctx, rec.ID)
	if err != nil {
		g.logger.Error("loading relations", zap.Int64("character_id", rec.ID), zap.Error(err))
		_ = s.SendLine(fail(failCharacterUnavailable))
		return false
	}
	if err := s.SelectCharacter(character.New(rec, entries...)); err != nil {
		_ = s.SendLine(fail(failCharacterUnavailable))
		return false
	}
	g.logger.Info("character selected",
		zap.String("session_id", s.ID()),
		zap.Int64("character_id", rec.ID),
		zap.String("character", rec.Name),
	)
	_ = s.SendLine("OK")
	return true
}

func (g *Gateway) createCharacter(ctx context.Context, s *session.Session, existing int, args []string) (character.Record, bool) {
	if len(args) != 2 {
		_ = s.SendLine(fail(failUsage))
		return character.Record{}, false
	}
	if existing >= MaxCharacters {
		_ = s.SendLine(fail(failCharacterListFull))
		return character.Record{}, false
	}
	faction, err := strconv.Atoi(args[1])
	if err != nil {
		_ = s.SendLine(fail(failInvalidCharacter))
		return character.Record{}, false
	}
	rec, err := character.Build(s.AccountID(), args[0], character.Faction(faction))
	if err != nil {
		_ = s.SendLine(fail(failInvalidCharacter))
		return character.Record{}, false
	}

	cctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	created, err := g.characters.Create(cctx, rec)
	switch {
	case err == nil:
		return created, true
	case errors.Is(err, postgres.ErrCharacterNameTaken):
		_ = s.SendLine(fail(failCharacterNameTaken))
	default:
		g.logger.Error("creating character", zap.Error(err))
		_ = s.SendLine(fail(failInternal))
	}
	return character.Record{}, false
}
