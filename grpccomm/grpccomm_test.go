package grpccomm

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/unixpickle/dist-train/collective"
	"github.com/unixpickle/dist-train/tensor"
)

func startCoordinator(t *testing.T) (*Coordinator, *bufconn.Listener) {
	t.Helper()
	coord := NewCoordinator()
	coord.Log = zaptest.NewLogger(t)
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterCoordinatorServer(srv, coord)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return coord, lis
}

func dialComm(ctx context.Context, lis *bufconn.Listener, group string, world int) (*Comm, error) {
	return Dial(ctx, "passthrough:///bufnet", group, world,
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func TestCommAllReduce(t *testing.T) {
	_, lis := startCoordinator(t)
	var eg errgroup.Group
	for rank := 0; rank < 3; rank++ {
		eg.Go(func() error {
			comm, err := dialComm(context.Background(), lis, "workers", 3)
			if err != nil {
				return err
			}
			defer comm.Close()

			vec, err := tensor.FromSlice(tensor.Host(), []float64{
				float64(rank + 1), float64(2 * (rank + 1)),
			})
			if err != nil {
				return err
			}
			if err := comm.AllReduce(vec, collective.OpSum); err != nil {
				return err
			}
			if data, _ := vec.Read(); data[0] != 6 || data[1] != 12 {
				return fmt.Errorf("rank %d: sum came back as %v", rank, data)
			}

			mean, err := tensor.Scalar(tensor.Host(), float64(comm.Rank()))
			if err != nil {
				return err
			}
			if err := comm.AllReduceMean(mean); err != nil {
				return err
			}
			if data, _ := mean.Read(); data[0] != 1.0 {
				return fmt.Errorf("rank %d: mean came back as %v", rank, data)
			}

			top, err := tensor.Scalar(tensor.Host(), float64(2*comm.Rank()))
			if err != nil {
				return err
			}
			if err := comm.AllReduce(top, collective.OpMax); err != nil {
				return err
			}
			if data, _ := top.Read(); data[0] != 4.0 {
				return fmt.Errorf("rank %d: max came back as %v", rank, data)
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
}

func TestCommBcastAndBarrier(t *testing.T) {
	_, lis := startCoordinator(t)
	var eg errgroup.Group
	for rank := 0; rank < 3; rank++ {
		eg.Go(func() error {
			comm, err := dialComm(context.Background(), lis, "bcasters", 3)
			if err != nil {
				return err
			}
			defer comm.Close()

			var vec *tensor.Vector
			if comm.Rank() == 1 {
				vec, err = tensor.FromSlice(tensor.Host(), []float64{3.5, 4.5})
			} else {
				vec, err = tensor.Zeros(tensor.Host(), 2)
			}
			if err != nil {
				return err
			}
			if err := comm.Bcast(vec, 1); err != nil {
				return err
			}
			if data, _ := vec.Read(); data[0] != 3.5 || data[1] != 4.5 {
				return fmt.Errorf("rank %d: bcast came back as %v", comm.Rank(), data)
			}
			return comm.Barrier()
		})
	}
	require.NoError(t, eg.Wait())
}

func TestCommRanks(t *testing.T) {
	_, lis := startCoordinator(t)
	comms := make(chan *Comm, 3)
	var eg errgroup.Group
	for i := 0; i < 3; i++ {
		eg.Go(func() error {
			comm, err := dialComm(context.Background(), lis, "ranked", 3)
			if err != nil {
				return err
			}
			comms <- comm
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	close(comms)

	ranks := map[int]bool{}
	sessions := map[string]bool{}
	for comm := range comms {
		assert.Equal(t, 3, comm.Size())
		ranks[comm.Rank()] = true
		sessions[comm.Session()] = true
		comm.Close()
	}
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, ranks)
	assert.Len(t, sessions, 1)
}

func TestJoinWorldMismatch(t *testing.T) {
	_, lis := startCoordinator(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := dialComm(ctx, lis, "mismatched", 2)
		firstErr <- err
	}()
	time.Sleep(100 * time.Millisecond)

	_, err := dialComm(context.Background(), lis, "mismatched", 3)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	cancel()
	assert.Error(t, <-firstErr)
}

func TestJoinAbandon(t *testing.T) {
	coord, lis := startCoordinator(t)

	ctx, cancel := context.WithCancel(context.Background())
	secondErr := make(chan error, 1)
	go func() {
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer waitCancel()
		_, err := dialComm(waitCtx, lis, "flaky", 3)
		secondErr <- err
	}()
	go func() {
		_, _ = dialComm(ctx, lis, "flaky", 3)
	}()
	time.Sleep(100 * time.Millisecond)

	// One joiner gives up, which kills the whole formation.
	cancel()
	err := <-secondErr
	require.Error(t, err)
	assert.Equal(t, codes.Aborted, status.Code(err))

	// The group name is immediately reusable.
	var eg errgroup.Group
	for i := 0; i < 3; i++ {
		eg.Go(func() error {
			comm, err := dialComm(context.Background(), lis, "flaky", 3)
			if err != nil {
				return err
			}
			return comm.Close()
		})
	}
	require.NoError(t, eg.Wait())

	coord.mu.Lock()
	defer coord.mu.Unlock()
	assert.Empty(t, coord.forming)
}

func TestCommDesync(t *testing.T) {
	// Members disagreeing about the current collective must be
	// rejected, not silently mixed into one reduction.
	_, lis := startCoordinator(t)
	errs := make([]error, 2)
	var eg errgroup.Group
	for rank := 0; rank < 2; rank++ {
		eg.Go(func() error {
			comm, err := dialComm(context.Background(), lis, "confused", 2)
			if err != nil {
				return err
			}
			defer comm.Close()
			comm.Timeout = 2 * time.Second

			vec, err := tensor.Zeros(tensor.Host(), 2+rank)
			if err != nil {
				return err
			}
			errs[rank] = comm.AllReduce(vec, collective.OpSum)
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	require.Error(t, errs[0])
	require.Error(t, errs[1])
	mismatched := 0
	for _, err := range errs {
		if status.Code(err) == codes.FailedPrecondition {
			mismatched++
		}
	}
	assert.Equal(t, 1, mismatched, "exactly one member should be rejected, errors: %v", errs)
}

func TestSessionGC(t *testing.T) {
	coord, lis := startCoordinator(t)
	var eg errgroup.Group
	comms := make(chan *Comm, 2)
	for i := 0; i < 2; i++ {
		eg.Go(func() error {
			comm, err := dialComm(context.Background(), lis, "brief", 2)
			if err == nil {
				comms <- comm
			}
			return err
		})
	}
	require.NoError(t, eg.Wait())
	close(comms)

	for comm := range comms {
		require.NoError(t, comm.Close())
	}

	coord.mu.Lock()
	defer coord.mu.Unlock()
	assert.Empty(t, coord.sessions)
	assert.Empty(t, coord.forming)
}

func TestSessionRounds(t *testing.T) {
	s := newSession("s", "g", 1)

	_, err := s.enter(context.Background(), arrival{
		kind: "barrier", sig: "barrier", rank: 0, round: 2,
	})
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	out, err := s.enter(context.Background(), arrival{
		kind: "allreduce", sig: "allreduce/sum/1", op: collective.OpSum,
		rank: 0, round: 1, data: []float64{5},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, out)

	_, err = s.enter(context.Background(), arrival{
		kind: "barrier", sig: "barrier", rank: 0, round: 2,
	})
	require.NoError(t, err)
}

func TestSessionDuplicateRank(t *testing.T) {
	s := newSession("s", "g", 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan error, 1)
	go func() {
		_, err := s.enter(ctx, arrival{
			kind: "barrier", sig: "barrier", rank: 0, round: 1,
		})
		first <- err
	}()
	for {
		s.mu.Lock()
		registered := s.pending != nil
		s.mu.Unlock()
		if registered {
			break
		}
		time.Sleep(time.Millisecond)
	}

	_, err := s.enter(context.Background(), arrival{
		kind: "barrier", sig: "barrier", rank: 0, round: 1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twice")

	_, err = s.enter(context.Background(), arrival{
		kind: "barrier", sig: "barrier", rank: 1, round: 1,
	})
	require.NoError(t, err)
	require.NoError(t, <-first)
}

func TestWireTags(t *testing.T) {
	// The message structs are hand-written, so make sure the
	// struct tags produce a round-trippable encoding.
	in := &AllReduceRequest{
		Session: "abc",
		Rank:    2,
		Round:   7,
		Op:      int32(collective.OpMax),
		Data:    []float64{1.5, -2.5, 3.25},
	}
	raw, err := proto.Marshal(in)
	require.NoError(t, err)
	out := new(AllReduceRequest)
	require.NoError(t, proto.Unmarshal(raw, out))
	assert.Equal(t, in, out)

	bin := &BcastRequest{Session: "abc", Rank: 1, Round: 3, Root: 1, Count: 2, Data: []float64{9, 10}}
	raw, err = proto.Marshal(bin)
	require.NoError(t, err)
	bout := new(BcastRequest)
	require.NoError(t, proto.Unmarshal(raw, bout))
	assert.Equal(t, bin, bout)
}
