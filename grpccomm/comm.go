// Package grpccomm runs collective operations between real
// processes through a rendezvous coordinator, so that trainer
// code written against collective.Group works unchanged whether
// its peers are goroutines or machines.
//
// Workers call Dial with a shared group name and world size.
// The coordinator assigns ranks in arrival order and hands the
// full group a session ID; afterwards every collective is a
// unary RPC that blocks server-side until all ranks have
// entered it.
package grpccomm

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"google.golang.org/grpc"

	"github.com/unixpickle/dist-train/collective"
	"github.com/unixpickle/dist-train/tensor"
)

// A Comm is a collective.Group whose members are processes
// connected to a shared Coordinator.
//
// Collectives are numbered in program order on both sides, so a
// Comm that returns an error from a collective is out of step
// with the rest of the group and cannot run further ones.
type Comm struct {
	// Timeout bounds each collective call, covering both the
	// time spent waiting for slower members and the transfer
	// itself. Zero means no deadline.
	Timeout time.Duration

	conn    *grpc.ClientConn
	client  CoordinatorClient
	session string
	rank    int
	size    int
	round   uint64
}

var _ collective.Group = (*Comm)(nil)

// Dial connects to a coordinator at target and joins group,
// blocking until world members have arrived or ctx expires.
// Transport security comes from opts; tests and trusted
// networks pass insecure credentials.
func Dial(ctx context.Context, target, group string, world int, opts ...grpc.DialOption) (*Comm, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial coordinator: %w", err)
	}
	client := NewCoordinatorClient(conn)
	reply, err := client.Join(ctx, &JoinRequest{Group: group, World: int32(world)})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("join group %q: %w", group, err)
	}
	return &Comm{
		conn:    conn,
		client:  client,
		session: reply.Session,
		rank:    int(reply.Rank),
		size:    int(reply.Size),
	}, nil
}

// Rank returns this member's index in the group.
func (c *Comm) Rank() int {
	return c.rank
}

// Size returns the number of members in the group.
func (c *Comm) Size() int {
	return c.size
}

// Session returns the group's coordinator-assigned session ID.
func (c *Comm) Session() string {
	return c.session
}

func (c *Comm) AllReduce(vec *tensor.Vector, op collective.ReduceOp) error {
	return c.allReduce(vec, op, op.String(), 1)
}

func (c *Comm) AllReduceMean(vec *tensor.Vector) error {
	return c.allReduce(vec, collective.OpSum, "mean", 1/float64(c.size))
}

func (c *Comm) allReduce(vec *tensor.Vector, op collective.ReduceOp, opName string, scale float64) error {
	data, err := vec.Read()
	if err != nil {
		return fmt.Errorf("allreduce %s: %w", opName, err)
	}
	ctx, cancel := c.opCtx()
	defer cancel()
	c.round++
	reply, err := c.client.AllReduce(ctx, &AllReduceRequest{
		Session: c.session,
		Rank:    int32(c.rank),
		Round:   c.round,
		Op:      int32(op),
		Data:    data,
	})
	if err != nil {
		return fmt.Errorf("allreduce %s: %w", opName, err)
	}
	out := reply.Data
	if len(out) != vec.Len() {
		return fmt.Errorf("allreduce %s: coordinator returned %d values for %d", opName, len(out), vec.Len())
	}
	if scale != 1 {
		for i := range out {
			out[i] *= scale
		}
	}
	if err := vec.Write(out); err != nil {
		return fmt.Errorf("allreduce %s: %w", opName, err)
	}
	return nil
}

func (c *Comm) Bcast(vec *tensor.Vector, root int) error {
	if root < 0 || root >= c.size {
		return fmt.Errorf("bcast: rank %d outside group of %d", root, c.size)
	}
	req := &BcastRequest{
		Session: c.session,
		Rank:    int32(c.rank),
		Root:    int32(root),
		Count:   int32(vec.Len()),
	}
	if c.rank == root {
		data, err := vec.Read()
		if err != nil {
			return fmt.Errorf("bcast: %w", err)
		}
		req.Data = data
	}
	ctx, cancel := c.opCtx()
	defer cancel()
	c.round++
	req.Round = c.round
	reply, err := c.client.Bcast(ctx, req)
	if err != nil {
		return fmt.Errorf("bcast: %w", err)
	}
	if c.rank != root {
		if len(reply.Data) != vec.Len() {
			return fmt.Errorf("bcast: root sent %d values but vector holds %d", len(reply.Data), vec.Len())
		}
		if err := vec.Write(reply.Data); err != nil {
			return fmt.Errorf("bcast: %w", err)
		}
	}
	return nil
}

func (c *Comm) Barrier() error {
	ctx, cancel := c.opCtx()
	defer cancel()
	c.round++
	_, err := c.client.Barrier(ctx, &BarrierRequest{
		Session: c.session,
		Rank:    int32(c.rank),
		Round:   c.round,
	})
	if err != nil {
		return fmt.Errorf("barrier: %w", err)
	}
	return nil
}

// Close gives up the member's seat and tears down the
// connection. The last member to close a session deletes it on
// the coordinator.
func (c *Comm) Close() error {
	var result error
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.client.Leave(ctx, &LeaveRequest{Session: c.session, Rank: int32(c.rank)}); err != nil {
		result = multierror.Append(result, fmt.Errorf("leave group: %w", err))
	}
	if err := c.conn.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close connection: %w", err))
	}
	return result
}

func (c *Comm) opCtx() (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(context.Background(), c.Timeout)
	}
	return context.Background(), func() {}
}
