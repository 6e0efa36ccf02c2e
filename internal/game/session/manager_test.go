package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/nosgate/internal/game/character"
)

func newPlayer(t *testing.T, m *Manager, charID int64, name string) *Session {
	t.Helper()
	s := New("127.0.0.1:1", Account{ID: charID, Name: "acct" + name}, Options{SendBuffer: 8})
	require.NoError(t, s.SelectCharacter(character.New(character.Record{ID: charID, Name: name})))
	require.NoError(t, m.Add(s))
	require.NoError(t, m.BindCharacter(s))
	return s
}

func drain(s *Session) []string {
	var out []string
	for {
		select {
		case line, ok := <-s.Outbound():
			if !ok {
				return out
			}
			out = append(out, line)
		default:
			return out
		}
	}
}

func TestOutbox_Push(t *testing.T) {
	o := NewOutbox("test", 4)
	require.NoError(t, o.Push("hello"))
	assert.Equal(t, "hello", <-o.Lines())
}

func TestOutbox_PushClosed(t *testing.T) {
	o := NewOutbox("test", 4)
	o.Close()
	assert.True(t, o.IsClosed())
	assert.ErrorIs(t, o.Push("fail"), ErrOutboxClosed)
}

func TestOutbox_PushFull(t *testing.T) {
	o := NewOutbox("test", 1)
	require.NoError(t, o.Push("first"))
	assert.ErrorIs(t, o.Push("overflow"), ErrOutboxFull)
}

func TestOutbox_CloseKeepsQueuedLines(t *testing.T) {
	o := NewOutbox("test", 4)
	require.NoError(t, o.Push("a"))
	require.NoError(t, o.Push("b"))
	o.Close()
	o.Close()

	var got []string
	for line := range o.Lines() {
		got = append(got, line)
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSession_SelectCharacterOnce(t *testing.T) {
	s := New("addr", Account{ID: 1}, Options{})
	assert.Zero(t, s.CharacterID())
	require.NoError(t, s.SelectCharacter(character.New(character.Record{ID: 5, Name: "Ayaka"})))
	assert.Equal(t, int64(5), s.CharacterID())
	assert.ErrorIs(t, s.SelectCharacter(character.New(character.Record{ID: 6})), ErrCharacterActive)
}

func TestSession_DisconnectIdempotent(t *testing.T) {
	s := New("addr", Account{ID: 1}, Options{})
	calls := 0
	s.OnDisconnect(func(*Session) { calls++ })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Disconnect()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	assert.True(t, s.IsClosed())
	assert.Error(t, s.SendLine("late"))

	late := false
	s.OnDisconnect(func(*Session) { late = true })
	assert.True(t, late, "hooks registered after close run immediately")
}

func TestSession_DisconnectFlushesPending(t *testing.T) {
	s := New("addr", Account{ID: 1}, Options{SendBuffer: 4})
	require.NoError(t, s.SendLine("one"))
	require.NoError(t, s.SendLine("two"))
	s.Disconnect()

	var got []string
	for line := range s.Outbound() {
		got = append(got, line)
	}
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestSession_ServeSerializes(t *testing.T) {
	s := New("addr", Account{ID: 1}, Options{})
	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Serve(func() {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxActive)
}

func TestSession_ServeAfterDisconnect(t *testing.T) {
	s := New("addr", Account{ID: 1}, Options{})
	s.Disconnect()
	ran := false
	assert.False(t, s.Serve(func() { ran = true }))
	assert.False(t, ran)
}

func TestSession_DisconnectInsideServe(t *testing.T) {
	s := New("addr", Account{ID: 1}, Options{})
	ok := s.Serve(func() { s.Disconnect() })
	assert.True(t, ok, "in-flight handler completes")
	assert.True(t, s.IsClosed())
}

func TestSession_ChatLimiter(t *testing.T) {
	s := New("addr", Account{ID: 1}, Options{ChatRate: 0.001, ChatBurst: 2})
	assert.True(t, s.AllowChat())
	assert.True(t, s.AllowChat())
	assert.False(t, s.AllowChat())

	unlimited := New("addr", Account{ID: 1}, Options{})
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.AllowChat())
	}
}

func TestSession_IdleFor(t *testing.T) {
	s := New("addr", Account{ID: 1}, Options{})
	assert.Less(t, s.IdleFor(time.Now()), time.Second)
	assert.GreaterOrEqual(t, s.IdleFor(time.Now().Add(time.Minute)), time.Minute)
}

func TestManager_BindAndLookup(t *testing.T) {
	m := NewManager()
	s := newPlayer(t, m, 42, "Ayaka")

	got, ok := m.ByCharacterID(42)
	require.True(t, ok)
	assert.Same(t, s, got)
	got, ok = m.ByCharacterName("Ayaka")
	require.True(t, ok)
	assert.Same(t, s, got)
	_, ok = m.ByCharacterName("ayaka")
	assert.False(t, ok, "names are matched exactly")
	assert.Equal(t, 1, m.Count())
	assert.Len(t, m.InGame(), 1)
}

func TestManager_BindDuplicateCharacter(t *testing.T) {
	m := NewManager()
	newPlayer(t, m, 42, "Ayaka")

	s2 := New("addr", Account{ID: 2}, Options{})
	require.NoError(t, s2.SelectCharacter(character.New(character.Record{ID: 42, Name: "Ayaka"})))
	require.NoError(t, m.Add(s2))
	assert.ErrorIs(t, m.BindCharacter(s2), ErrCharacterOnline)
}

func TestManager_BindWithoutCharacter(t *testing.T) {
	m := NewManager()
	s := New("addr", Account{ID: 1}, Options{})
	require.NoError(t, m.Add(s))
	assert.ErrorIs(t, m.BindCharacter(s), ErrNoCharacter)
	assert.Error(t, m.Add(s), "duplicate session id")
}

func TestManager_MoveToMap(t *testing.T) {
	m := NewManager()
	a := newPlayer(t, m, 1, "Alpha")
	b := newPlayer(t, m, 2, "Bravo")

	old, err := m.MoveToMap(a.ID(), "1")
	require.NoError(t, err)
	assert.Equal(t, "", old)
	_, err = m.MoveToMap(b.ID(), "1")
	require.NoError(t, err)
	assert.Len(t, m.OnMap("1"), 2)

	old, err = m.MoveToMap(a.ID(), "145")
	require.NoError(t, err)
	assert.Equal(t, "1", old)
	assert.Equal(t, "145", a.CurrentMap())
	assert.Equal(t, "145", a.Character().MapID())
	assert.Len(t, m.OnMap("1"), 1)

	_, err = m.MoveToMap("missing", "1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_RemoveClearsEveryIndex(t *testing.T) {
	m := NewManager()
	s := newPlayer(t, m, 7, "Ayaka")
	_, err := m.MoveToMap(s.ID(), "1")
	require.NoError(t, err)

	removed, ok := m.Remove(s.ID())
	require.True(t, ok)
	assert.Same(t, s, removed)

	_, ok = m.ByCharacterID(7)
	assert.False(t, ok)
	_, ok = m.ByCharacterName("Ayaka")
	assert.False(t, ok)
	assert.Empty(t, m.OnMap("1"))
	assert.Equal(t, "", s.CurrentMap())

	_, ok = m.Remove(s.ID())
	assert.False(t, ok)
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := New("addr", Account{ID: int64(i)}, Options{})
			_ = s.SelectCharacter(character.New(character.Record{ID: int64(i + 1), Name: fmt.Sprintf("char%03d", i)}))
			_ = m.Add(s)
			_ = m.BindCharacter(s)
			_, _ = m.MoveToMap(s.ID(), fmt.Sprintf("%d", i%3))
			_ = m.OnMap("0")
			_ = drain(s)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, m.Count())
	total := len(m.OnMap("0")) + len(m.OnMap("1")) + len(m.OnMap("2"))
	assert.Equal(t, 50, total)
}

// Property: a session is on exactly the map it was last moved to.
func TestPropertyManager_MapIndexConsistent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := NewManager()
		sessions := make([]*Session, 4)
		for i := range sessions {
			sessions[i] = New("addr", Account{ID: int64(i)}, Options{})
			_ = m.Add(sessions[i])
		}
		maps := []string{"1", "2", "3"}
		moves := rapid.IntRange(1, 30).Draw(rt, "moves")
		for i := 0; i < moves; i++ {
			s := sessions[rapid.IntRange(0, 3).Draw(rt, "session")]
			mp := maps[rapid.IntRange(0, 2).Draw(rt, "map")]
			_, _ = m.MoveToMap(s.ID(), mp)
		}
		for _, mp := range maps {
			for _, s := range m.OnMap(mp) {
				if s.CurrentMap() != mp {
					rt.Fatalf("session on %s index reports map %s", mp, s.CurrentMap())
				}
			}
		}
	})
}

func TestSession_DisconnectFromOtherGoroutineWaitsForHandler(t *testing.T) {
	s := New("addr", Account{ID: 1}, Options{})
	var hookRan atomic.Bool
	s.OnDisconnect(func(*Session) { hookRan.Store(true) })

	entered := make(chan struct{})
	release := make(chan struct{})
	served := make(chan bool, 1)
	go func() {
		served <- s.Serve(func() {
			close(entered)
			<-release
		})
	}()
	<-entered

	s.Disconnect()
	assert.True(t, s.IsClosed())
	assert.False(t, hookRan.Load(), "hooks wait for the in-flight handler")

	close(release)
	require.True(t, <-served)
	assert.True(t, hookRan.Load())
	assert.False(t, s.Serve(func() { t.Error("handler ran on a closed session") }))
	_, open := <-s.Outbound()
	assert.False(t, open, "outbox closes after the deferred hooks")
}
