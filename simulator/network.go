package simulator

import (
	"fmt"
	"math/rand"
	"sync/atomic"
)

// A Node is an addressable machine in a simulated network.
type Node struct {
	id int64
}

var nodeCounter atomic.Int64

// NewNode creates a Node with a unique identity.
func NewNode() *Node {
	return &Node{id: nodeCounter.Add(1)}
}

// String returns a short identifier for the Node.
func (n *Node) String() string {
	return fmt.Sprintf("node%d", n.id)
}

// A Port receives Messages addressed to a Node.
//
// A Node may have any number of Ports, each with its own
// incoming stream, so that independent protocols on the same
// machine do not steal each other's messages.
type Port struct {
	Node     *Node
	Incoming *EventStream
}

// Port creates a new Port on the Node.
func (n *Node) Port(loop *EventLoop) *Port {
	return &Port{Node: n, Incoming: loop.Stream()}
}

// Recv blocks until a Message arrives on the Port.
func (p *Port) Recv(h *Handle) *Message {
	return h.Poll(p.Incoming).Payload.(*Message)
}

// A Message is a payload sent between two Ports.
//
// Size is measured in bytes and determines how long a Network
// spends transmitting the Message.
type Message struct {
	Source  *Port
	Dest    *Port
	Payload any
	Size    float64
}

// A Network delivers Messages between Ports under some timing
// model.
type Network interface {
	// Send queues the Messages for delivery to their
	// destination Ports and returns without waiting.
	Send(h *Handle, msgs ...*Message)
}

// A RandomNetwork delivers every Message independently after a
// uniformly random delay, ignoring Message sizes.
type RandomNetwork struct {
	// MaxLatency bounds the delivery delay.
	// A zero value means one virtual second.
	MaxLatency float64
}

// Send delivers each Message after its own random delay.
func (r *RandomNetwork) Send(h *Handle, msgs ...*Message) {
	maxDelay := r.MaxLatency
	if maxDelay == 0 {
		maxDelay = 1.0
	}
	for _, msg := range msgs {
		h.Schedule(msg.Dest.Incoming, msg, rand.Float64()*maxDelay)
	}
}
