package gameserver

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cory-johannsen/nosgate/internal/game/bazaar"
	"github.com/cory-johannsen/nosgate/internal/game/character"
)

// Speech types carried by say and spk packets.
const (
	speechNormal  = 0
	speechGarbled = 1
	speechGroup   = 3
	speechWhisper = 5
	speechSystem  = 10
	speechNotice  = 11
	speechGM      = 15
)

// msg packet display types.
const (
	msgCenter   = 0
	msgHero     = 5
	msgInfoChat = 10
)

// emoticon effects are the guri value offset into the effect table.
const (
	emoticonFirst  = 973
	emoticonLast   = 999
	emoticonOffset = 4099
)

// garbledSpeech is what the opposing faction hears on a faction map.
const garbledSpeech = `%#$@#^&**\!@#$#@%#$%`

// maxTalkLength caps whispers and friend talk, in runes.
const maxTalkLength = 60

func dirLine(charID int64, dir int) string {
	return fmt.Sprintf("dir 1 %d %d", charID, dir)
}

func sayLine(charID int64, speech int, text string) string {
	return fmt.Sprintf("say 1 %d %d %s", charID, speech, text)
}

func spkLine(charID int64, speech int, name, text string) string {
	return fmt.Sprintf("spk 1 %d %d %s %s", charID, speech, name, text)
}

func infoLine(text string) string { return "info " + text }

func msgLine(kind int, text string) string {
	return fmt.Sprintf("msg %d %s", kind, text)
}

func dlgLine(yes, no, text string) string {
	return fmt.Sprintf("dlg %s %s %s", yes, no, text)
}

// dialogAnswer renders the packet a client sends back from a dlg button.
func dialogAnswer(header string, answer, charID int64) string {
	return fmt.Sprintf("%s^%d^%d", header, answer, charID)
}

// talkLine renders friend talk. The client expects two spaces after the header.
func talkLine(fromID int64, text string) string {
	return fmt.Sprintf("talk  %d %s", fromID, text)
}

func effLine(charID int64, effect int64) string {
	return fmt.Sprintf("eff 1 %d %d", charID, effect)
}

func inLine(c *character.Character) string {
	return fmt.Sprintf("in 1 %s - %d %d %d", c.Name, c.ID, c.Direction(), c.Faction)
}

func outLine(charID int64) string {
	return fmt.Sprintf("out 1 %d", charID)
}

func mvLine(charID int64, x, y, speed int) string {
	return fmt.Sprintf("mv 1 %d %d %d %d", charID, x, y, speed)
}

func condLine(c *character.Character) string {
	return fmt.Sprintf("cond 1 %d 0 0 %d", c.ID, c.Speed)
}

func restLine(charID int64, sitting bool) string {
	v := 0
	if sitting {
		v = 1
	}
	return fmt.Sprintf("rest 1 %d %d", charID, v)
}

type friendEntry struct {
	ID     int64
	Online bool
	Name   string
}

// finitLine lists friends as id|online|name.
func finitLine(friends []friendEntry) string {
	var b strings.Builder
	b.WriteString("finit")
	for _, f := range friends {
		online := 0
		if f.Online {
			online = 1
		}
		fmt.Fprintf(&b, " %d|%d|%s", f.ID, online, f.Name)
	}
	return b.String()
}

// blinitLine lists blocked characters as id|name.
func blinitLine(blocked []friendEntry) string {
	var b strings.Builder
	b.WriteString("blinit")
	for _, f := range blocked {
		fmt.Fprintf(&b, " %d|%s", f.ID, f.Name)
	}
	return b.String()
}

type memberEntry struct {
	ID     int64
	Name   string
	Leader bool
}

// pinitLine lists group members as id|name|leader, preceded by the count.
// An empty list clears the client's group window.
func pinitLine(members []memberEntry) string {
	var b strings.Builder
	b.WriteString("pinit ")
	b.WriteString(strconv.Itoa(len(members)))
	for _, m := range members {
		leader := 0
		if m.Leader {
			leader = 1
		}
		fmt.Fprintf(&b, " %d|%s|%d", m.ID, m.Name, leader)
	}
	return b.String()
}

// rcBlistLine renders one bazaar page as
// id|seller|vnum|amount|price|minutesLeft entries.
func rcBlistLine(page int, listings []bazaar.Listing, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "rc_blist %d", page)
	for _, l := range listings {
		left := int(l.ExpiresAt.Sub(now) / time.Minute)
		if left < 0 {
			left = 0
		}
		fmt.Fprintf(&b, " %d|%s|%d|%d|%d|%d", l.ID, l.SellerName, l.ItemVNum, l.Amount, l.Price, left)
	}
	return b.String()
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
