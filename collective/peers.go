package collective

import (
	"errors"

	"github.com/unixpickle/dist-train/simulator"
)

// Peers is a Transport running inside a simulated network,
// where sends cost transmission time and Work costs compute
// time.
type Peers struct {
	Handle  *simulator.Handle
	Network simulator.Network
	Ports   []*simulator.Port
	Index   int

	// FlopRate is the simulated compute speed for Work, in
	// flops per virtual second. Zero disables compute cost.
	FlopRate float64
}

// Spawn runs fn on one simulated worker per Node, all
// connected through network, and drives the loop until every
// worker returns.
//
// The workers' Peers share a single Port slice, so rank i is
// the worker on nodes[i].
func Spawn(loop *simulator.EventLoop, network simulator.Network, nodes []*simulator.Node, fn func(p *Peers)) error {
	if len(nodes) == 0 {
		return errors.New("spawn: no nodes")
	}
	return loop.Run(func(h *simulator.Handle) {
		ports := make([]*simulator.Port, len(nodes))
		for i, node := range nodes {
			ports[i] = node.Port(loop)
		}
		for i := range nodes {
			loop.Go(func(h *simulator.Handle) {
				fn(&Peers{Handle: h, Network: network, Ports: ports, Index: i})
			})
		}
	})
}

// Rank returns the worker's index in the group.
func (p *Peers) Rank() int {
	return p.Index
}

// Size returns the number of workers in the group.
func (p *Peers) Size() int {
	return len(p.Ports)
}

// Send transmits a copy of vec to the worker with the given
// rank, at a cost of eight bytes per value.
func (p *Peers) Send(to int, vec []float64) {
	cp := append([]float64(nil), vec...)
	p.Network.Send(p.Handle, &simulator.Message{
		Source:  p.Ports[p.Index],
		Dest:    p.Ports[to],
		Payload: cp,
		Size:    float64(8 * len(vec)),
	})
}

// Recv blocks until a vector arrives on the worker's Port.
func (p *Peers) Recv() ([]float64, int) {
	msg := p.Ports[p.Index].Recv(p.Handle)
	for i, port := range p.Ports {
		if port == msg.Source {
			return msg.Payload.([]float64), i
		}
	}
	panic("message from a Port outside the group")
}

// Work sleeps for flops/FlopRate virtual seconds.
func (p *Peers) Work(flops float64) {
	if p.FlopRate > 0 {
		p.Handle.Sleep(flops / p.FlopRate)
	}
}
