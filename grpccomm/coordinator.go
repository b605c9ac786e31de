package grpccomm

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/unixpickle/dist-train/collective"
)

// A Coordinator is the rendezvous server behind Comm. Workers
// Join a named group; once the group is full they get a shared
// session, and each collective blocks on the server until every
// rank of the session has contributed.
type Coordinator struct {
	// Log receives group lifecycle events. Replace it before
	// registering the Coordinator with a server.
	Log *zap.Logger

	mu       sync.Mutex
	forming  map[string]*formingGroup
	sessions map[string]*session
}

var _ CoordinatorServer = (*Coordinator)(nil)

// NewCoordinator creates an empty rendezvous server.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		Log:      zap.NewNop(),
		forming:  map[string]*formingGroup{},
		sessions: map[string]*session{},
	}
}

// A formingGroup collects joiners until the group is full.
// Abandoning a join kills the whole formation, so ranks stay
// contiguous; the next join then starts a fresh formation.
type formingGroup struct {
	world   int
	session string
	joined  int
	failed  bool
	ready   chan struct{}
}

func (c *Coordinator) Join(ctx context.Context, req *JoinRequest) (*JoinReply, error) {
	if req.Group == "" {
		return nil, status.Error(codes.InvalidArgument, "group name is empty")
	}
	if req.World < 1 {
		return nil, status.Errorf(codes.InvalidArgument, "world size %d is not positive", req.World)
	}

	c.mu.Lock()
	fg := c.forming[req.Group]
	if fg == nil {
		fg = &formingGroup{
			world:   int(req.World),
			session: uuid.NewString(),
			ready:   make(chan struct{}),
		}
		c.forming[req.Group] = fg
	}
	if fg.world != int(req.World) {
		c.mu.Unlock()
		return nil, status.Errorf(codes.InvalidArgument,
			"group %q is forming with %d members, not %d", req.Group, fg.world, req.World)
	}
	rank := fg.joined
	fg.joined++
	if fg.joined == fg.world {
		delete(c.forming, req.Group)
		c.sessions[fg.session] = newSession(fg.session, req.Group, fg.world)
		close(fg.ready)
		c.Log.Info("group formed",
			zap.String("group", req.Group),
			zap.String("session", fg.session),
			zap.Int("size", fg.world))
		groupsFormed.Inc()
		activeSessions.Inc()
	}
	c.mu.Unlock()

	select {
	case <-fg.ready:
	case <-ctx.Done():
		if !c.abandonForming(req.Group, fg) {
			// Formation already completed, so the seat we were
			// assigned must be released like a Leave.
			c.leaveSession(fg.session, rank)
		}
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	if fg.failed {
		return nil, status.Errorf(codes.Aborted, "group %q formation abandoned", req.Group)
	}
	return &JoinReply{Session: fg.session, Rank: int32(rank), Size: int32(fg.world)}, nil
}

// abandonForming kills fg if it is still the live formation for
// group, waking its other joiners with an error. It reports
// whether it did so.
func (c *Coordinator) abandonForming(group string, fg *formingGroup) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.forming[group] != fg {
		return false
	}
	delete(c.forming, group)
	fg.failed = true
	close(fg.ready)
	c.Log.Warn("group formation abandoned",
		zap.String("group", group),
		zap.Int("joined", fg.joined),
		zap.Int("world", fg.world))
	return true
}

func (c *Coordinator) AllReduce(ctx context.Context, req *AllReduceRequest) (*AllReduceReply, error) {
	op := collective.ReduceOp(req.Op)
	if !op.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown reduce op %d", req.Op)
	}
	s, err := c.lookup(req.Session)
	if err != nil {
		return nil, err
	}
	out, err := s.enter(ctx, arrival{
		kind:  "allreduce",
		sig:   fmt.Sprintf("allreduce/%s/%d", op, len(req.Data)),
		op:    op,
		rank:  int(req.Rank),
		round: req.Round,
		data:  req.Data,
	})
	if err != nil {
		return nil, err
	}
	return &AllReduceReply{Data: out}, nil
}

func (c *Coordinator) Bcast(ctx context.Context, req *BcastRequest) (*BcastReply, error) {
	s, err := c.lookup(req.Session)
	if err != nil {
		return nil, err
	}
	root := int(req.Root)
	if root < 0 || root >= s.size {
		return nil, status.Errorf(codes.InvalidArgument, "root rank %d outside group of %d", root, s.size)
	}
	if int(req.Rank) == root {
		if len(req.Data) != int(req.Count) {
			return nil, status.Errorf(codes.InvalidArgument,
				"root sent %d values but declared %d", len(req.Data), req.Count)
		}
	} else if len(req.Data) != 0 {
		return nil, status.Errorf(codes.InvalidArgument, "rank %d is not the root but sent data", req.Rank)
	}
	out, err := s.enter(ctx, arrival{
		kind:  "bcast",
		sig:   fmt.Sprintf("bcast/%d/%d", root, req.Count),
		root:  root,
		rank:  int(req.Rank),
		round: req.Round,
		data:  req.Data,
	})
	if err != nil {
		return nil, err
	}
	return &BcastReply{Data: out}, nil
}

func (c *Coordinator) Barrier(ctx context.Context, req *BarrierRequest) (*BarrierReply, error) {
	s, err := c.lookup(req.Session)
	if err != nil {
		return nil, err
	}
	_, err = s.enter(ctx, arrival{
		kind:  "barrier",
		sig:   "barrier",
		rank:  int(req.Rank),
		round: req.Round,
	})
	if err != nil {
		return nil, err
	}
	return &BarrierReply{}, nil
}

func (c *Coordinator) Leave(ctx context.Context, req *LeaveRequest) (*LeaveReply, error) {
	c.leaveSession(req.Session, int(req.Rank))
	return &LeaveReply{}, nil
}

func (c *Coordinator) lookup(id string) (*session, error) {
	c.mu.Lock()
	s := c.sessions[id]
	c.mu.Unlock()
	if s == nil {
		return nil, status.Errorf(codes.NotFound, "no session %q", id)
	}
	return s, nil
}

// leaveSession releases one rank's seat. A collective that was
// waiting on the leaver is failed for everyone, and the session
// is deleted once its last member has left.
func (c *Coordinator) leaveSession(id string, rank int) {
	c.mu.Lock()
	s := c.sessions[id]
	c.mu.Unlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	if rank < 0 || rank >= s.size || s.left[rank] {
		s.mu.Unlock()
		return
	}
	s.left[rank] = true
	s.members--
	if col := s.pending; col != nil {
		col.err = status.Errorf(codes.Aborted, "rank %d left during %s round %d", rank, col.kind, col.round)
		s.pending = nil
		close(col.done)
		c.Log.Warn("collective aborted by leave",
			zap.String("session", id),
			zap.Int("rank", rank),
			zap.String("kind", col.kind))
	}
	empty := s.members == 0
	s.mu.Unlock()

	if empty {
		c.mu.Lock()
		delete(c.sessions, id)
		c.mu.Unlock()
		activeSessions.Dec()
		c.Log.Info("session closed",
			zap.String("session", id),
			zap.String("group", s.group))
	}
}

// A session is one fully formed group generation.
type session struct {
	id    string
	group string
	size  int

	mu      sync.Mutex
	members int
	left    map[int]bool
	round   uint64
	pending *collect
}

func newSession(id, group string, size int) *session {
	return &session{
		id:      id,
		group:   group,
		size:    size,
		members: size,
		left:    map[int]bool{},
	}
}

// An arrival is one rank's entry into a collective round.
type arrival struct {
	kind  string
	sig   string
	op    collective.ReduceOp
	root  int
	rank  int
	round uint64
	data  []float64
}

// A collect gathers one arrival per rank, then releases them
// all with the same result.
type collect struct {
	kind    string
	sig     string
	op      collective.ReduceOp
	root    int
	round   uint64
	got     map[int][]float64
	arrived int
	done    chan struct{}
	result  []float64
	err     error
}

// enter blocks until every rank of the session has entered the
// same round, then returns the round's result.
//
// Rounds are numbered from 1 in each member's program order.
// Because a member cannot start round n+1 before its round n
// returns, at most one collect is ever pending; an arrival with
// the wrong round or signature is a desynchronized member and
// is rejected rather than mixed in.
func (s *session) enter(ctx context.Context, a arrival) ([]float64, error) {
	if a.rank < 0 || a.rank >= s.size {
		return nil, status.Errorf(codes.InvalidArgument, "rank %d outside group of %d", a.rank, s.size)
	}

	s.mu.Lock()
	if s.members < s.size {
		s.mu.Unlock()
		return nil, status.Errorf(codes.FailedPrecondition, "session %q has lost members", s.id)
	}
	col := s.pending
	if col == nil {
		if a.round != s.round+1 {
			s.mu.Unlock()
			return nil, status.Errorf(codes.FailedPrecondition,
				"%s round %d does not follow round %d", a.kind, a.round, s.round)
		}
		col = &collect{
			kind:  a.kind,
			sig:   a.sig,
			op:    a.op,
			root:  a.root,
			round: a.round,
			got:   map[int][]float64{},
			done:  make(chan struct{}),
		}
		s.pending = col
	}
	if col.sig != a.sig || col.round != a.round {
		s.mu.Unlock()
		return nil, status.Errorf(codes.FailedPrecondition,
			"rank %d entered %s round %d while the group runs %s round %d",
			a.rank, a.sig, a.round, col.sig, col.round)
	}
	if _, ok := col.got[a.rank]; ok {
		s.mu.Unlock()
		return nil, status.Errorf(codes.FailedPrecondition,
			"rank %d entered %s round %d twice", a.rank, a.kind, a.round)
	}
	col.got[a.rank] = a.data
	col.arrived++
	if col.arrived == s.size {
		col.finish(s.size)
		s.round = col.round
		s.pending = nil
		close(col.done)
	}
	s.mu.Unlock()

	select {
	case <-col.done:
		if col.err != nil {
			return nil, col.err
		}
		return col.result, nil
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

func (col *collect) finish(size int) {
	switch col.kind {
	case "allreduce":
		out := append([]float64(nil), col.got[0]...)
		fn := col.op.Fn()
		for rank := 1; rank < size; rank++ {
			fn(out, col.got[rank])
		}
		col.result = out
	case "bcast":
		col.result = col.got[col.root]
	}
	collectivesTotal.WithLabelValues(col.kind).Inc()
}
