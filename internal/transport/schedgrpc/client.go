package schedgrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rik-org/riklet/internal/model"
)

// Client is a thin wrapper over one gRPC connection to a worker agent's
// scheduling endpoint.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a worker agent's scheduling listener at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("schedgrpc: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Schedule sends one InstanceScheduling message and returns the agent's
// acknowledgement.
func (c *Client) Schedule(ctx context.Context, in model.InstanceScheduling) (model.ScheduleAck, error) {
	var out model.ScheduleAck
	fullMethod := "/" + serviceName + "/Schedule"
	if err := c.conn.Invoke(ctx, fullMethod, &in, &out, grpc.CallContentSubtype(codecName)); err != nil {
		return model.ScheduleAck{}, fmt.Errorf("schedgrpc: schedule: %w", err)
	}
	return out, nil
}
