// Package main changes the authority or ban state of a world account.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cory-johannsen/nosgate/internal/config"
	"github.com/cory-johannsen/nosgate/internal/game/character"
	"github.com/cory-johannsen/nosgate/internal/storage/postgres"
)

var authorityNames = map[string]int{
	"user":       character.AuthorityUser,
	"moderator":  character.AuthorityModerator,
	"gamemaster": character.AuthorityGameMaster,
	"admin":      character.AuthorityAdmin,
}

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	username := flag.String("username", "", "target account username (required)")
	level := flag.String("authority", "", "authority to assign: user, moderator, gamemaster or admin")
	ban := flag.Duration("ban", 0, "block logins for this long, e.g. 72h")
	unban := flag.Bool("unban", false, "lift an active ban")
	flag.Parse()

	if *username == "" || (*level == "" && *ban <= 0 && !*unban) || (*ban > 0 && *unban) {
		flag.Usage()
		os.Exit(1)
	}
	authority := -1
	if *level != "" {
		a, ok := authorityNames[strings.ToLower(*level)]
		if !ok {
			log.Fatalf("invalid authority %q: must be one of user, moderator, gamemaster, admin", *level)
		}
		authority = a
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database, postgres.WithApplicationName("nosgate-setauthority"))
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	accounts := pool.Repositories().Accounts
	acct, err := accounts.GetByUsername(ctx, *username)
	if err != nil {
		log.Fatalf("looking up account %q: %v", *username, err)
	}

	if authority >= 0 {
		if err := accounts.SetAuthority(ctx, acct.ID, authority); err != nil {
			log.Fatalf("setting authority: %v", err)
		}
		fmt.Fprintf(os.Stdout, "authority for %s (#%d): %d -> %d\n", acct.Username, acct.ID, acct.Authority, authority)
	}
	switch {
	case *ban > 0:
		until := time.Now().Add(*ban).UTC()
		if err := accounts.Ban(ctx, acct.ID, until); err != nil {
			log.Fatalf("banning account: %v", err)
		}
		fmt.Fprintf(os.Stdout, "%s (#%d) banned until %s\n", acct.Username, acct.ID, until.Format(time.RFC3339))
	case *unban:
		if err := accounts.Ban(ctx, acct.ID, time.Time{}); err != nil {
			log.Fatalf("lifting ban: %v", err)
		}
		fmt.Fprintf(os.Stdout, "%s (#%d) unbanned\n", acct.Username, acct.ID)
	}
}
