// Package handlers runs one client connection from login to logout: account
// login, character selection, and the packet loop that feeds the router.
// It is transport-agnostic; telnet and websocket connections both satisfy
// LineConn.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/nosgate/internal/game/character"
	"github.com/cory-johannsen/nosgate/internal/game/command"
	"github.com/cory-johannsen/nosgate/internal/game/relation"
	"github.com/cory-johannsen/nosgate/internal/gameserver"
	"github.com/cory-johannsen/nosgate/internal/storage/postgres"
)

// LineConn is a client connection exchanged as text lines.
type LineConn interface {
	ReadLine() (string, error)
	WriteLine(text string) error
	RemoteAddr() net.Addr
	Close() error
}

// AccountStore is the account persistence the login phase needs.
type AccountStore interface {
	Create(ctx context.Context, username, password string) (postgres.Account, error)
	Authenticate(ctx context.Context, username, password string) (postgres.Account, error)
}

// CharacterStore is the character persistence the selection phase needs.
type CharacterStore interface {
	ListByAccount(ctx context.Context, accountID int64) ([]character.Record, error)
	Create(ctx context.Context, rec character.Record) (character.Record, error)
}

// RelationStore loads a character's friend and block lists.
type RelationStore interface {
	List(ctx context.Context, characterID int64) ([]relation.Entry, error)
}

const storeTimeout = 5 * time.Second

// Replies sent before a character is in game.
const (
	replyOK   = "ok"
	replyFail = "fail"

	failUsage                = "USAGE"
	failAccountNotFound      = "ACCOUNT_NOT_FOUND"
	failInvalidCredentials   = "INVALID_CREDENTIALS"
	failAccountBanned        = "ACCOUNT_BANNED"
	failAccountExists        = "ACCOUNT_EXISTS"
	failInvalidUsername      = "INVALID_USERNAME"
	failInvalidPassword      = "INVALID_PASSWORD"
	failInternal             = "INTERNAL_ERROR"
	failUnknownCommand       = "UNKNOWN_COMMAND"
	failCharacterNameTaken   = "CHARACTER_NAME_TAKEN"
	failInvalidCharacter     = "INVALID_CHARACTER"
	failInvalidSlot          = "INVALID_SLOT"
	failCharacterListFull    = "CHARACTER_LIST_FULL"
	failCharacterUnavailable = "CHARACTER_UNAVAILABLE"
)

// Gateway serves client connections against a World.
type Gateway struct {
	accounts   AccountStore
	characters CharacterStore
	relations  RelationStore
	world      *gameserver.World
	router     *command.Router
	logger     *zap.Logger
}

// NewGateway wires a Gateway.
//
// Precondition: every argument must be non-nil.
func NewGateway(accounts AccountStore, characters CharacterStore, relations RelationStore, world *gameserver.World, router *command.Router, logger *zap.Logger) *Gateway {
	if accounts == nil || characters == nil || relations == nil || world == nil || router == nil || logger == nil {
		panic("handlers.NewGateway: all collaborators must be non-nil")
	}
	return &Gateway{
		accounts:   accounts,
		characters: characters,
		relations:  relations,
		world:      world,
		router:     router,
		logger:     logger,
	}
}

// Serve runs conn until the client quits, the connection fails or ctx is
// cancelled.
//
// Postcondition: Returns nil on a clean quit.
func (g *Gateway) Serve(ctx context.Context, conn LineConn) error {
	acct, err := g.authenticate(ctx, conn)
	if err != nil || acct.ID == 0 {
		return err
	}
	g.logger.Info("account logged in",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.String("username", acct.Username),
	)
	return g.play(ctx, conn, acct)
}

// authenticate loops over login and register lines.
//
// Postcondition: Returns the account on login, a zero account when the
// client quit, or an error when the connection failed.
func (g *Gateway) authenticate(ctx context.Context, conn LineConn) (postgres.Account, error) {
	for {
		if err := ctx.Err(); err != nil {
			return postgres.Account{}, err
		}
		line, err := conn.ReadLine()
		if err != nil {
			return postgres.Account{}, fmt.Errorf("reading login: %w", err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "quit":
			return postgres.Account{}, nil
		case "login":
			acct, reply := g.login(ctx, fields[1:])
			if err := conn.WriteLine(reply); err != nil {
				return postgres.Account{}, fmt.Errorf("writing login reply: %w", err)
			}
			if acct.ID != 0 {
				return acct, nil
			}
		case "register":
			if err := conn.WriteLine(g.register(ctx, fields[1:])); err != nil {
				return postgres.Account{}, fmt.Errorf("writing register reply: %w", err)
			}
		default:
			if err := conn.WriteLine(fail(failUnknownCommand)); err != nil {
				return postgres.Account{}, fmt.Errorf("writing reply: %w", err)
			}
		}
	}
}

func (g *Gateway) login(ctx context.Context, args []string) (postgres.Account, string) {
	if len(args) != 2 {
		return postgres.Account{}, fail(failUsage)
	}
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	acct, err := g.accounts.Authenticate(ctx, args[0], args[1])
	switch {
	case err == nil:
		return acct, fmt.Sprintf("%s %d", replyOK, acct.ID)
	case errors.Is(err, postgres.ErrAccountNotFound):
		return postgres.Account{}, fail(failAccountNotFound)
	case errors.Is(err, postgres.ErrInvalidCredentials):
		return postgres.Account{}, fail(failInvalidCredentials)
	case errors.Is(err, postgres.ErrAccountBanned):
		g.logger.Info("banned account refused", zap.String("username", args[0]))
		return postgres.Account{}, fail(failAccountBanned)
	default:
		g.logger.Error("authentication error", zap.Error(err))
		return postgres.Account{}, fail(failInternal)
	}
}

func (g *Gateway) register(ctx context.Context, args []string) string {
	if len(args) != 2 {
		return fail(failUsage)
	}
	username, password := args[0], args[1]
	if len(username) < 3 || len(username) > 32 {
		return fail(failInvalidUsername)
	}
	if len(password) < 6 {
		return fail(failInvalidPassword)
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	acct, err := g.accounts.Create(ctx, username, password)
	switch {
	case err == nil:
		return fmt.Sprintf("%s %d", replyOK, acct.ID)
	case errors.Is(err, postgres.ErrAccountExists):
		return fail(failAccountExists)
	default:
		g.logger.Error("registration error", zap.Error(err))
		return fail(failInternal)
	}
}

func fail(reason string) string { return replyFail + " " + reason }
