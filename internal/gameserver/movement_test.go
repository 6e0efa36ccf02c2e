package gameserver

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/nosgate/internal/game/character"
	"github.com/cory-johannsen/nosgate/internal/game/command"
)

func TestHandleWalk_BroadcastsToMap(t *testing.T) {
	f := newFixture(t)
	a := f.join(1, "Ayaka", townMap, character.FactionNone)
	b := f.join(2, "Brann", townMap, character.FactionNone)
	c := f.join(3, "Cera", "2", character.FactionNone)
	drainAll(a, b, c)

	f.send(a, "walk 12 34 0 11")

	assert.Equal(t, []string{"mv 1 1 12 34 11", "cond 1 1 0 0 11"}, drain(a))
	assert.Equal(t, []string{"mv 1 1 12 34 11"}, drain(b))
	assert.Empty(t, drain(c))
	x, y := a.Character().Position()
	assert.Equal(t, []int{12, 34}, []int{x, y})
}

func TestHandleWalk_OverSpeedDisconnects(t *testing.T) {
	f := newFixture(t)
	a := f.join(1, "Ayaka", townMap, character.FactionNone)
	b := f.join(2, "Brann", townMap, character.FactionNone)
	drainAll(a, b)

	f.send(a, fmt.Sprintf("walk 1 1 0 %d", character.DefaultSpeed+1))

	assert.True(t, a.IsClosed())
	_, online := f.world.Sessions().ByCharacterID(1)
	assert.False(t, online)
	assert.Contains(t, drain(b), "out 1 1")
}

func TestHandleWalk_LongStepAfterArrivalDisconnects(t *testing.T) {
	f := newFixture(t)
	a := f.join(1, "Ayaka", townMap, character.FactionNone)
	drain(a)

	a.Character().Place(0, 0, time.Now().Add(-2*character.ArrivalGrace))
	f.send(a, fmt.Sprintf("walk %d 0 0 11", character.MaxStep+1))

	assert.True(t, a.IsClosed())
}

func TestHandleWalk_LongStepRightAfterArrivalAccepted(t *testing.T) {
	f := newFixture(t)
	a := f.join(1, "Ayaka", townMap, character.FactionNone)
	drain(a)

	f.send(a, "walk 150 150 0 11")

	assert.False(t, a.IsClosed())
	assert.Contains(t, drain(a), "mv 1 1 150 150 11")
}

func TestHandleWalk_OutsideMapIgnored(t *testing.T) {
	f := newFixture(t)
	a := f.join(1, "Ayaka", "2", character.FactionNone)
	drain(a)

	x, y := a.Character().Position()
	assert.Equal(t, []int{5, 5}, []int{x, y}, "placed on the map spawn")

	for _, line := range []string{"walk 20 5 0 11", "walk 5 20 0 11", "walk -1 5 0 11"} {
		f.send(a, line)
		assert.Empty(t, drain(a), line)
		assert.False(t, a.IsClosed(), line)
	}
	x, y = a.Character().Position()
	assert.Equal(t, []int{5, 5}, []int{x, y})
}

func TestHandleWalk_BeforeGameStartIgnored(t *testing.T) {
	f := newFixture(t)
	a := f.connect(character.Record{ID: 1, AccountID: 1, Name: "Ayaka", MapID: townMap})

	f.send(a, "walk 3 3 0 11")

	assert.Empty(t, drain(a))
	assert.False(t, a.IsClosed())
}

func TestHandleWalk_TruncatedPacketDropped(t *testing.T) {
	f := newFixture(t)
	a := f.join(1, "Ayaka", townMap, character.FactionNone)
	drain(a)

	for _, line := range []string{"walk 3", "walk 3 4", "walk 3 4 0", "walk x 4 0 11"} {
		err := f.router.Dispatch(a, line)
		assert.ErrorIs(t, err, command.ErrMalformed, line)
	}
	assert.Empty(t, drain(a))
}

func TestHandleWalk_PropertyInBoundsStepsAccepted(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		a := f.join(1, "Ayaka", "2", character.FactionNone)
		drain(a)

		n := rapid.IntRange(1, 10).Draw(rt, "steps")
		for i := 0; i < n; i++ {
			x := rapid.IntRange(0, 19).Draw(rt, "x")
			y := rapid.IntRange(0, 19).Draw(rt, "y")
			speed := rapid.IntRange(0, character.DefaultSpeed).Draw(rt, "speed")
			f.send(a, fmt.Sprintf("walk %d %d 0 %d", x, y, speed))

			require.False(rt, a.IsClosed())
			gx, gy := a.Character().Position()
			require.Equal(rt, []int{x, y}, []int{gx, gy})
		}
	})
}

func TestHandleRest_TogglesAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	a := f.join(1, "Ayaka", townMap, character.FactionNone)
	b := f.join(2, "Brann", townMap, character.FactionNone)
	drainAll(a, b)

	f.send(a, "rest 1 1")
	assert.Equal(t, []string{"rest 1 1 1"}, drain(a))
	assert.Equal(t, []string{"rest 1 1 1"}, drain(b))
	assert.True(t, a.Character().Sitting())

	f.send(a, "rest")
	assert.Equal(t, []string{"rest 1 1 0"}, drain(b))
	assert.False(t, a.Character().Sitting())
}

func TestHandleRest_MapChangeStandsUp(t *testing.T) {
	f := newFixture(t)
	a := f.join(1, "Ayaka", townMap, character.FactionNone)
	f.send(a, "rest")
	require.True(t, a.Character().Sitting())

	f.world.enterMap(a, a.Character(), "2")

	assert.False(t, a.Character().Sitting())
	x, y := a.Character().Position()
	assert.Equal(t, []int{5, 5}, []int{x, y})
}
