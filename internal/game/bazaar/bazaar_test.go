package bazaar

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/nosgate/internal/game/gate"
)

func listings(n int) []Listing {
	out := make([]Listing, n)
	for i := range out {
		out[i] = Listing{ID: int64(i + 1), SellerID: 7, ItemVNum: 1000 + i, Amount: 1, Price: 100}
	}
	return out
}

func staticLoader(ls []Listing) Loader {
	return LoaderFunc(func(context.Context) ([]Listing, error) { return ls, nil })
}

func TestStore_RefreshAndPage(t *testing.T) {
	s := NewStore(gate.New(), time.Second)
	require.NoError(t, s.Refresh(context.Background(), staticLoader(listings(5))))
	assert.False(t, s.RefreshedAt().IsZero())

	page, total, err := s.Page(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, []int64{3, 4}, []int64{page[0].ID, page[1].ID})

	page, _, err = s.Page(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	page, _, err = s.Page(context.Background(), 9, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestStore_PagePastEnd(t *testing.T) {
	s := NewStore(gate.New(), time.Second)
	require.NoError(t, s.Refresh(context.Background(), staticLoader(listings(5))))

	for _, page := range []int{3, 1 << 62, math.MaxInt} {
		got, total, err := s.Page(context.Background(), page, 2)
		require.NoError(t, err, "page %d", page)
		assert.Empty(t, got, "page %d", page)
		assert.Equal(t, 5, total)
	}
	got, _, err := s.Page(context.Background(), 1, math.MaxInt)
	require.NoError(t, err)
	assert.Empty(t, got)
	got, _, err = s.Page(context.Background(), 0, math.MaxInt)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestStore_PageRejectsBadArguments(t *testing.T) {
	s := NewStore(gate.New(), time.Second)
	_, _, err := s.Page(context.Background(), -1, 10)
	assert.Error(t, err)
	_, _, err = s.Page(context.Background(), 0, 0)
	assert.Error(t, err)
}

func TestStore_RefreshErrorKeepsSnapshot(t *testing.T) {
	s := NewStore(gate.New(), time.Second)
	require.NoError(t, s.Refresh(context.Background(), staticLoader(listings(3))))

	boom := errors.New("db down")
	err := s.Refresh(context.Background(), LoaderFunc(func(context.Context) ([]Listing, error) { return nil, boom }))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Gate().Active())
}

func TestStore_PageWaitsForRefresh(t *testing.T) {
	s := NewStore(gate.New(), 2*time.Second)
	release := make(chan struct{})
	loading := make(chan struct{})

	go func() {
		_ = s.Refresh(context.Background(), LoaderFunc(func(context.Context) ([]Listing, error) {
			close(loading)
			<-release
			return listings(4), nil
		}))
	}()
	<-loading

	done := make(chan int)
	go func() {
		_, total, _ := s.Page(context.Background(), 0, 10)
		done <- total
	}()

	select {
	case <-done:
		t.Fatal("page returned while refresh was in progress")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	assert.Equal(t, 4, <-done)
}

func TestStore_PageTimesOut(t *testing.T) {
	g := gate.New()
	s := NewStore(g, 20*time.Millisecond)
	require.NoError(t, g.Begin(context.Background()))
	defer g.End()

	_, _, err := s.Page(context.Background(), 0, 10)
	assert.ErrorIs(t, err, gate.ErrTimeout)
}

// Property: concatenating all pages yields the full snapshot in order.
func TestPropertyStore_PagesCoverSnapshot(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(rt, "listings")
		size := rapid.IntRange(1, 10).Draw(rt, "size")
		s := NewStore(gate.New(), time.Second)
		if err := s.Refresh(context.Background(), staticLoader(listings(n))); err != nil {
			rt.Fatalf("refresh: %v", err)
		}
		var ids []int64
		for p := 0; ; p++ {
			page, _, err := s.Page(context.Background(), p, size)
			if err != nil {
				rt.Fatalf("page: %v", err)
			}
			if len(page) == 0 {
				break
			}
			for _, l := range page {
				ids = append(ids, l.ID)
			}
		}
		if len(ids) != n {
			rt.Fatalf("got %d listings, want %d", len(ids), n)
		}
		for i, id := range ids {
			if id != int64(i+1) {
				rt.Fatalf("listing %d has id %d", i, id)
			}
		}
	})
}
