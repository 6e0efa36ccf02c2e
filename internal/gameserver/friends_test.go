package gameserver

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/nosgate/internal/game/character"
	"github.com/cory-johannsen/nosgate/internal/game/relation"
	"github.com/cory-johannsen/nosgate/internal/storage/postgres"
)

func TestHandleFriendRequest_AcceptFlow(t *testing.T) {
	f := newFixture(t)
	a := f.join(1, "Ayaka", townMap, character.FactionNone)
	b := f.join(2, "Brann", "2", character.FactionNone)
	drainAll(a, b)

	f.send(a, "fins 1 2")
	assert.Equal(t, []string{"info FRIEND_REQUEST_SENT"}, drain(a))
	assert.Equal(t, []string{"dlg #fins^-1^1 #fins^-99^1 FRIEND_ADD"}, drain(b))

	f.send(b, "#fins^-1^1")
	assert.True(t, a.Character().IsFriend(2))
	assert.True(t, b.Character().IsFriend(1))
	assert.Equal(t, []string{"finit 2|1|Brann", "info FRIEND_ADDED"}, drain(a))
	assert.Equal(t, []string{"finit 1|1|Ayaka", "info FRIEND_ADDED"}, drain(b))
	assert.ElementsMatch(t, postgres.Friendship(2, 1), f.rels.upserts)
}

func TestHandleFriendRequest_Checks(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Config.FriendCapacity = 1 })
	a := f.join(1, "Ayaka", townMap, character.FactionNone)
	b := f.join(2, "Brann", townMap, character.FactionNone)
	drainAll(a, b)

	f.send(a, "fins 1 99")
	assert.Equal(t, []string{"info USER_NOT_CONNECTED"}, drain(a))

	b.Character().Relations.Add(1, relation.Blocked)
	f.send(a, "fins 1 2")
	assert.Equal(t, []string{"info BLACKLIST_BLOCKED"}, drain(a))
	b.Character().Relations.Delete(1)

	a.Character().Relations.Add(2, relation.Blocked)
	f.send(a, "fins 1 2")
	assert.Equal(t, []string{"info BLACKLIST_BLOCKING"}, drain(a))
	a.Character().Relations.Delete(2)

	b.Character().SetOption(character.OptionFriendRequestBlocked, true)
	f.send(a, "fins 1 2")
	assert.Equal(t, []string{"info FRIEND_REQUEST_BLOCKED"}, drain(a))
	b.Character().SetOption(character.OptionFriendRequestBlocked, false)

	a.Character().Relations.Add(2, relation.Friend)
	f.send(a, "fins 1 2")
	assert.Equal(t, []string{"info FRIEND_FULL"}, drain(a), "capacity is checked first")
	assert.Empty(t, drain(b))
}

func TestHandleFriendAnswer_Reject(t *testing.T) {
	f := newFixture(t)
	a := f.join(1, "Ayaka", townMap, character.FactionNone)
	b := f.join(2, "Brann", townMap, character.FactionNone)
	drainAll(a, b)

	f.send(a, "fins 1 2")
	drainAll(a, b)
	f.send(b, "#fins^-99^1")
	assert.Equal(t, []string{"info FRIEND_REJECTED"}, drain(a))
	assert.False(t, a.Character().IsFriend(2))

	f.send(b, "#fins^-1^1")
	assert.False(t, b.Character().IsFriend(1), "the rejected request is gone")
}

func TestHandleFriendAnswer_CrossedRequestsLeaveOneEntryEachSide(t *testing.T) {
	f := newFixture(t)
	a := f.join(1, "Ayaka", townMap, character.FactionNone)
	b := f.join(2, "Brann", townMap, character.FactionNone)

	f.send(a, "fins 1 2")
	f.send(b, "fins 1 1")
	f.send(a, "#fins^-1^2")
	f.send(b, "#fins^-1^1")
	f.send(b, "#fins^-1^1")

	assert.Equal(t, []int64{2}, a.Character().Relations.List(relation.Friend))
	assert.Equal(t, []int64{1}, b.Character().Relations.List(relation.Friend))
	assert.Len(t, f.rels.upserts, 2)
	assert.Equal(t, 0, a.Character().FriendRequests.Len())
	assert.Equal(t, 0, b.Character().FriendRequests.Len())
}

func TestHandleFriendDelete(t *testing.T) {
	f := newFixture(t)
	a := f.join(1, "Ayaka", townMap, character.FactionNone)
	b := f.join(2, "Brann", townMap, character.FactionNone)
	a.Character().Relations.Add(2, relation.Friend)
	b.Character().Relations.Add(1, relation.Friend)
	a.Character().Relations.Add(3, relation.Friend)
	f.chars.names[3] = "Cirra"
	drainAll(a, b)

	f.send(a, "fdel 2")
	assert.False(t, a.Character().IsFriend(2))
	assert.False(t, b.Character().IsFriend(1))
	assert.Equal(t, []string{"finit 3|0|Cirra", "info FRIEND_DELETED"}, drain(a))
	assert.Equal(t, []string{"finit"}, drain(b))
	assert.ElementsMatch(t, postgres.Friendship(1, 2), f.rels.deletes)

	f.send(a, "fdel 3")
	assert.Len(t, f.rels.deletes, 4, "offline friends are deleted through the store")
	drain(a)

	f.send(a, "fdel 3")
	assert.Empty(t, drain(a), "deleting a non-friend does nothing")
}

func TestHandleBlockAdd_EndsFriendship(t *testing.T) {
	f := newFixture(t)
	a := f.join(1, "Ayaka", townMap, character.FactionNone)
	b := f.join(2, "Brann", townMap, character.FactionNone)
	a.Character().Relations.Add(2, relation.Friend)
	b.Character().Relations.Add(1, relation.Friend)
	drainAll(a, b)

	f.send(a, "blins 2")
	assert.True(t, a.Character().IsBlocking(2))
	assert.False(t, a.Character().IsFriend(2))
	assert.False(t, b.Character().IsFriend(1))
	assert.Equal(t, []string{"finit", "blinit 2|Brann", "info BLACKLIST_ADDED"}, drain(a))
	assert.Equal(t, []string{"finit"}, drain(b))
	assert.Equal(t, []postgres.Edge{{CharacterID: 1, TargetID: 2, Type: relation.Blocked}}, f.rels.upserts)
	assert.ElementsMatch(t, postgres.Friendship(1, 2), f.rels.deletes)

	f.send(a, "bldel 2")
	assert.False(t, a.Character().IsBlocking(2))
	assert.Equal(t, []string{"blinit", "info BLACKLIST_DELETED"}, drain(a))
}

// Property: whatever order requests and answers arrive in, the friend
// relation stays symmetric and holds at most one entry per pair.
func TestFriends_PropertySymmetric(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		const players = 4
		for i := int64(1); i <= players; i++ {
			f.join(i, fmt.Sprintf("Player%d", i), townMap, character.FactionNone)
		}
		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			from := rapid.Int64Range(1, players).Draw(rt, "from")
			to := rapid.Int64Range(1, players).Draw(rt, "to")
			s, _ := f.world.Sessions().ByCharacterID(from)
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0:
				f.send(s, fmt.Sprintf("fins 1 %d", to))
			case 1:
				f.send(s, fmt.Sprintf("#fins^-1^%d", to))
			case 2:
				f.send(s, fmt.Sprintf("#fins^-99^%d", to))
			case 3:
				f.send(s, fmt.Sprintf("fdel %d", to))
			}
		}
		for x := int64(1); x <= players; x++ {
			sx, _ := f.world.Sessions().ByCharacterID(x)
			for y := int64(1); y <= players; y++ {
				sy, _ := f.world.Sessions().ByCharacterID(y)
				if sx.Character().IsFriend(y) != sy.Character().IsFriend(x) {
					rt.Fatalf("friendship between %d and %d is one-sided", x, y)
				}
			}
		}
	})
}
