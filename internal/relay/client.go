package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ErrNotDelivered is returned when no peer accepted a delivery.
var ErrNotDelivered = errors.New("no peer accepted the delivery")

type peer struct {
	addr string
	conn *grpc.ClientConn
}

// Client fans a delivery out to peers until one accepts it.
type Client struct {
	peers   []peer
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient dials every peer address. Dialing is lazy; unreachable peers only
// fail at Deliver time.
//
// Postcondition: Returns a Client, or an error if an address is unusable.
func NewClient(addrs []string, timeout time.Duration, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	c := &Client{timeout: timeout, logger: logger}
	for _, addr := range addrs {
		conn, err := grpc.NewClient(addr, opts...)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("relay: dialing peer %s: %w", addr, err)
		}
		c.peers = append(c.peers, peer{addr: addr, conn: conn})
	}
	return c, nil
}

// Peers returns the number of configured peers.
func (c *Client) Peers() int { return len(c.peers) }

// Deliver offers d to each peer in order and stops at the first acceptance.
// Peer errors are logged and skipped.
//
// Postcondition: Returns nil when a peer delivered the line, ErrNotDelivered
// otherwise, or a validation error.
func (c *Client) Deliver(ctx context.Context, d Delivery) error {
	if err := d.Validate(); err != nil {
		return err
	}
	req, err := d.toStruct()
	if err != nil {
		return fmt.Errorf("relay: encoding delivery: %w", err)
	}

	for _, p := range c.peers {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp := new(wrapperspb.BoolValue)
		err := p.conn.Invoke(callCtx, deliverMethod, req, resp)
		cancel()
		if err != nil {
			c.logger.Debug("relay peer failed",
				zap.String("peer", p.addr),
				zap.Error(err),
			)
			continue
		}
		if resp.GetValue() {
			return nil
		}
	}
	return ErrNotDelivered
}

// Close releases all peer connections.
func (c *Client) Close() {
	for _, p := range c.peers {
		if err := p.conn.Close(); err != nil {
			c.logger.Debug("closing relay peer", zap.String("peer", p.addr), zap.Error(err))
		}
	}
	c.peers = nil
}
