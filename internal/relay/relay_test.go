package relay

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"pgregory.net/rapid"
)

type recorder struct {
	mu     sync.Mutex
	online map[string]bool
	got    []Delivery
}

func (r *recorder) DeliverLocal(d Delivery) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, d)
	return r.online[d.ToName]
}

func (r *recorder) deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.got...)
}

// startPeers runs one relay server per recorder on an in-memory listener and
// returns a Client dialing all of them in order.
func startPeers(t *testing.T, peers ...*recorder) *Client {
	t.Helper()
	listeners := make(map[string]*bufconn.Listener)
	var addrs []string
	for i, rec := range peers {
		name := "peer" + string(rune('a'+i))
		lis := bufconn.Listen(1 << 16)
		gs := grpc.NewServer()
		NewServer(rec, zaptest.NewLogger(t)).Register(gs)
		go func() { _ = gs.Serve(lis) }()
		t.Cleanup(gs.Stop)
		listeners[name] = lis
		addrs = append(addrs, "passthrough:///"+name)
	}

	dialer := func(ctx context.Context, addr string) (net.Conn, error) {
		return listeners[addr].DialContext(ctx)
	}
	c, err := NewClient(addrs, time.Second, zaptest.NewLogger(t),
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func whisper(to string) Delivery {
	return Delivery{Kind: KindWhisper, FromID: 7, FromName: "Ayaka", ToName: to, Line: "spk 1 7 5 Ayaka hi"}
}

func TestClient_DeliverStopsAtFirstAcceptingPeer(t *testing.T) {
	a := &recorder{online: map[string]bool{}}
	b := &recorder{online: map[string]bool{"Bravo": true}}
	c := &recorder{online: map[string]bool{"Bravo": true}}
	client := startPeers(t, a, b, c)
	assert.Equal(t, 3, client.Peers())

	require.NoError(t, client.Deliver(context.Background(), whisper("Bravo")))
	assert.Len(t, a.deliveries(), 1)
	require.Len(t, b.deliveries(), 1)
	assert.Empty(t, c.deliveries())
	assert.Equal(t, whisper("Bravo"), b.deliveries()[0])
}

func TestClient_DeliverNobodyOnline(t *testing.T) {
	client := startPeers(t, &recorder{}, &recorder{})
	assert.ErrorIs(t, client.Deliver(context.Background(), whisper("Ghost")), ErrNotDelivered)
}

func TestClient_DeliverNoPeers(t *testing.T) {
	client, err := NewClient(nil, time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.ErrorIs(t, client.Deliver(context.Background(), whisper("Bravo")), ErrNotDelivered)
}

func TestClient_DeliverRejectsInvalid(t *testing.T) {
	rec := &recorder{}
	client := startPeers(t, rec)
	err := client.Deliver(context.Background(), Delivery{Kind: KindWhisper, Line: "x"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotDelivered)
	assert.Empty(t, rec.deliveries())
}

func TestClient_DeliverByID(t *testing.T) {
	rec := &recorder{}
	client := startPeers(t, rec)
	d := Delivery{Kind: KindFriendTalk, FromID: 1, ToID: 42, Line: "talk 1  hi"}
	assert.ErrorIs(t, client.Deliver(context.Background(), d), ErrNotDelivered)
	require.Len(t, rec.deliveries(), 1)
	assert.Equal(t, int64(42), rec.deliveries()[0].ToID)
}

func TestServer_DeliverInvalidArgument(t *testing.T) {
	srv := NewServer(&recorder{}, zaptest.NewLogger(t))
	req, err := structpb.NewStruct(map[string]any{"kind": "whisper", "to_id": "nope", "line": "x"})
	require.NoError(t, err)
	_, err = srv.Deliver(context.Background(), req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestNewServer_PanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { NewServer(nil, zaptest.NewLogger(t)) })
}

func TestDelivery_Validate(t *testing.T) {
	assert.NoError(t, whisper("Bravo").Validate())
	assert.Error(t, Delivery{Kind: "shout", ToName: "B", Line: "x"}.Validate())
	assert.Error(t, Delivery{Kind: KindWhisper, ToName: "B"}.Validate())
}

// Property: a delivery survives the Struct encoding unchanged.
func TestPropertyDelivery_StructEncoding(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		d := Delivery{
			Kind:     rapid.SampledFrom([]Kind{KindWhisper, KindFriendTalk}).Draw(rt, "kind"),
			FromID:   rapid.Int64().Draw(rt, "from"),
			FromName: rapid.StringMatching(`[A-Za-z]{0,14}`).Draw(rt, "from_name"),
			ToID:     rapid.Int64Range(1, 1<<62).Draw(rt, "to"),
			ToName:   rapid.StringMatching(`[A-Za-z]{0,14}`).Draw(rt, "to_name"),
			Line:     rapid.StringMatching(`[ -~]{1,60}`).Draw(rt, "line"),
		}
		s, err := d.toStruct()
		if err != nil {
			rt.Fatalf("encode: %v", err)
		}
		got, err := deliveryFromStruct(s)
		if err != nil {
			rt.Fatalf("decode: %v", err)
		}
		if got != d {
			rt.Fatalf("got %+v, want %+v", got, d)
		}
	})
}
