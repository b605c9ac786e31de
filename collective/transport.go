// Package collective provides group communication for
// distributed training workers.
//
// A Transport moves raw vectors between the members of a
// worker group. A Group layers collective operations on top of
// a Transport, using a pluggable all-reduce algorithm.
//
// Every member of a group must issue the same collective calls
// in the same order. The Transport layer does not tag traffic
// by operation, so mismatched call sequences deliver vectors
// to the wrong operation.
package collective

// A Transport connects one member of a worker group to the
// others.
//
// Implementations must be safe for concurrent use by the other
// members, but a single member must issue its own calls from
// one Goroutine.
type Transport interface {
	// Rank returns this member's index, from 0 through
	// Size()-1.
	Rank() int

	// Size returns the number of members in the group.
	Size() int

	// Send delivers a copy of vec to the member with the
	// given rank. It does not wait for the receiver.
	Send(to int, vec []float64)

	// Recv blocks until a vector arrives and returns it
	// along with the sender's rank.
	Recv() (vec []float64, from int)

	// Work accounts for flops of local computation. On
	// simulated transports this advances virtual time.
	Work(flops float64)
}

type localMessage struct {
	from int
	vec  []float64
}

type localTransport struct {
	rank   int
	inboxes []chan localMessage
}

// NewLocalTransports creates an in-process group of n
// Transports connected by channels.
//
// Each member is meant to run on its own Goroutine.
func NewLocalTransports(n int) []Transport {
	inboxes := make([]chan localMessage, n)
	for i := range inboxes {
		// Large enough that no protocol in this module
		// blocks on a full inbox.
		inboxes[i] = make(chan localMessage, 4*n)
	}
	out := make([]Transport, n)
	for i := range out {
		out[i] = &localTransport{rank: i, inboxes: inboxes}
	}
	return out
}

func (l *localTransport) Rank() int {
	return l.rank
}

func (l *localTransport) Size() int {
	return len(l.inboxes)
}

func (l *localTransport) Send(to int, vec []float64) {
	cp := append([]float64(nil), vec...)
	l.inboxes[to] <- localMessage{from: l.rank, vec: cp}
}

func (l *localTransport) Recv() ([]float64, int) {
	msg := <-l.inboxes[l.rank]
	return msg.vec, msg.from
}

func (l *localTransport) Work(flops float64) {
}
