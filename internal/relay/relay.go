// Package relay forwards player-addressed lines to peer world servers over gRPC
// when the recipient is not connected locally.
//
// Messages travel as google.protobuf.Struct requests answered with a
// google.protobuf.BoolValue, so no generated stubs are needed.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "nosgate.relay.v1.Relay"

const deliverMethod = "/" + ServiceName + "/Deliver"

// Kind is the reason a line is relayed.
type Kind string

const (
	KindWhisper    Kind = "whisper"
	KindFriendTalk Kind = "friend_talk"
)

// Delivery is one line addressed to a player by id or name.
type Delivery struct {
	Kind     Kind
	FromID   int64
	FromName string
	ToID     int64
	ToName   string
	Line     string
}

// Validate checks that d names a recipient and carries a line.
func (d Delivery) Validate() error {
	if d.ToID == 0 && d.ToName == "" {
		return errors.New("delivery has no recipient")
	}
	if d.Line == "" {
		return errors.New("delivery has no line")
	}
	switch d.Kind {
	case KindWhisper, KindFriendTalk:
	default:
		return fmt.Errorf("unknown delivery kind %q", d.Kind)
	}
	return nil
}

func (d Delivery) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"kind":      string(d.Kind),
		"from_id":   strconv.FormatInt(d.FromID, 10),
		"from_name": d.FromName,
		"to_id":     strconv.FormatInt(d.ToID, 10),
		"to_name":   d.ToName,
		"line":      d.Line,
	})
}

func deliveryFromStruct(s *structpb.Struct) (Delivery, error) {
	f := s.GetFields()
	str := func(k string) string { return f[k].GetStringValue() }
	id := func(k string) (int64, error) {
		v := str(k)
		if v == "" {
			return 0, nil
		}
		return strconv.ParseInt(v, 10, 64)
	}

	from, err := id("from_id")
	if err != nil {
		return Delivery{}, fmt.Errorf("from_id: %w", err)
	}
	to, err := id("to_id")
	if err != nil {
		return Delivery{}, fmt.Errorf("to_id: %w", err)
	}
	d := Delivery{
		Kind:     Kind(str("kind")),
		FromID:   from,
		FromName: str("from_name"),
		ToID:     to,
		ToName:   str("to_name"),
		Line:     str("line"),
	}
	return d, d.Validate()
}

// Deliverer hands a relayed line to a locally connected player.
type Deliverer interface {
	// DeliverLocal returns false when the recipient is not connected here.
	DeliverLocal(d Delivery) bool
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(d Delivery) bool

// DeliverLocal calls f.
func (f DelivererFunc) DeliverLocal(d Delivery) bool { return f(d) }

// relayService is the handler type registered with grpc.
type relayService interface {
	Deliver(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*relayService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nosgate/relay/v1/relay.proto",
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(relayService).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deliverMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(relayService).Deliver(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server answers relay requests from peers.
type Server struct {
	local  Deliverer
	logger *zap.Logger
}

// NewServer creates a Server that hands deliveries to local.
//
// Precondition: local and logger must be non-nil.
func NewServer(local Deliverer, logger *zap.Logger) *Server {
	if local == nil || logger == nil {
		panic("relay.NewServer: local and logger must be non-nil")
	}
	return &Server{local: local, logger: logger}
}

// Register attaches the relay service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// Deliver implements the Deliver RPC.
//
// Postcondition: Returns true when the recipient is connected to this server,
// or InvalidArgument for a malformed request.
func (s *Server) Deliver(_ context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	d, err := deliveryFromStruct(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid delivery: %v", err)
	}
	ok := s.local.DeliverLocal(d)
	s.logger.Debug("relay delivery",
		zap.String("kind", string(d.Kind)),
		zap.Int64("to_id", d.ToID),
		zap.String("to_name", d.ToName),
		zap.Bool("delivered", ok),
	)
	return wrapperspb.Bool(ok), nil
}
