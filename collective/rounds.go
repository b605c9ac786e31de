package collective

// A roundTransport separates successive collective operations
// running over one untagged Transport.
//
// A member that finishes an operation may immediately start
// the next one while slower members are still receiving, so
// vectors from different operations can interleave on the
// wire. Every Send is framed with the current round number,
// and receives for a round that has not started yet are
// stashed until the member gets there. A member never receives
// traffic for a past round, because finishing a round means it
// consumed everything addressed to it.
type roundTransport struct {
	inner Transport
	round int
	stash map[int][]stashedVec
}

type stashedVec struct {
	vec  []float64
	from int
}

func newRoundTransport(inner Transport) *roundTransport {
	return &roundTransport{inner: inner, stash: map[int][]stashedVec{}}
}

// begin enters the next round. Every member must call begin
// the same number of times in the same order relative to its
// sends and receives.
func (r *roundTransport) begin() {
	r.round++
}

func (r *roundTransport) Rank() int {
	return r.inner.Rank()
}

func (r *roundTransport) Size() int {
	return r.inner.Size()
}

func (r *roundTransport) Send(to int, vec []float64) {
	framed := make([]float64, 0, len(vec)+1)
	framed = append(framed, float64(r.round))
	framed = append(framed, vec...)
	r.inner.Send(to, framed)
}

func (r *roundTransport) Recv() ([]float64, int) {
	if list := r.stash[r.round]; len(list) > 0 {
		s := list[0]
		if len(list) == 1 {
			delete(r.stash, r.round)
		} else {
			r.stash[r.round] = list[1:]
		}
		return s.vec, s.from
	}
	for {
		vec, from := r.inner.Recv()
		round := int(vec[0])
		if round == r.round {
			return vec[1:], from
		}
		r.stash[round] = append(r.stash[round], stashedVec{vec: vec[1:], from: from})
	}
}

func (r *roundTransport) Work(flops float64) {
	r.inner.Work(flops)
}
