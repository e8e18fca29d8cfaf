package halo

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/NicholasBermuda/firedrake/errdefs"
)

// Transport tags separate the star-forest handshake from the two data
// exchange directions so their messages never interleave.
const (
	tagSetup = iota
	tagGlobalToLocal
	tagLocalToGlobal
)

// mailboxDepth bounds queued messages per sender, receiver and tag.
// Sends block once the queue is full, matching the backpressure of a
// real communication layer.
const mailboxDepth = 16

// Message is one transport payload: layout points during star-forest
// setup, data values during an exchange.
type Message struct {
	Points []int
	Values []float64
}

// Transport moves messages between the participants of a partitioned
// computation. Send is paired with a matching Recv on the destination;
// Recv blocks until that message arrives. Messages between one sender,
// receiver and tag are delivered in order.
type Transport interface {
	Send(to, tag int, msg Message) error
	Recv(from, tag int) (Message, error)
}

// Topology identifies one participant and carries the transport that
// connects it to its peers.
type Topology struct {
	rank int
	size int
	tr   Transport
}

// NewTopology validates and binds a participant identity. A transport
// is required unless the topology has a single participant.
func NewTopology(rank, size int, tr Transport) (*Topology, error) {
	if size < 1 {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "topology size %d, want at least 1", size)
	}
	if rank < 0 || rank >= size {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "rank %d outside topology of size %d", rank, size)
	}
	if tr == nil && size > 1 {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "topology of size %d needs a transport", size)
	}
	return &Topology{rank: rank, size: size, tr: tr}, nil
}

// Rank reports this participant's index.
func (t *Topology) Rank() int { return t.rank }

// Size reports the number of participants.
func (t *Topology) Size() int { return t.size }

// memFabric pairs in-process participants through buffered channel
// mailboxes, one per sender, receiver and tag.
type memFabric struct {
	size  int
	mu    sync.Mutex
	boxes map[mailboxKey]chan Message
}

type mailboxKey struct {
	from, to, tag int
}

func newMemFabric(size int) *memFabric {
	return &memFabric{
		size:  size,
		boxes: make(map[mailboxKey]chan Message),
	}
}

func (f *memFabric) box(from, to, tag int) chan Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := mailboxKey{from: from, to: to, tag: tag}
	b, ok := f.boxes[key]
	if !ok {
		b = make(chan Message, mailboxDepth)
		f.boxes[key] = b
	}
	return b
}

// memTransport is one participant's endpoint on a memFabric.
type memTransport struct {
	fabric *memFabric
	rank   int
}

func (t *memTransport) Send(to, tag int, msg Message) error {
	if to < 0 || to >= t.fabric.size {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "no participant %d in fabric of size %d", to, t.fabric.size)
	}
	if to == t.rank {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "participant %d sending to itself", t.rank)
	}
	t.fabric.box(t.rank, to, tag) <- msg
	return nil
}

func (t *memTransport) Recv(from, tag int) (Message, error) {
	if from < 0 || from >= t.fabric.size {
		return Message{}, errors.Wrapf(errdefs.ErrInvalidArgument, "no participant %d in fabric of size %d", from, t.fabric.size)
	}
	if from == t.rank {
		return Message{}, errors.Wrapf(errdefs.ErrInvalidArgument, "participant %d receiving from itself", t.rank)
	}
	return <-t.fabric.box(from, t.rank, tag), nil
}

// Cluster wires a fixed number of in-process participants over a shared
// memFabric. Each participant runs in its own goroutine; exchange
// operations are collective, so every participant must drive its halo
// through the same sequence of operations.
type Cluster struct {
	size   int
	fabric *memFabric
}

// NewCluster builds an in-memory fabric for the given participant count.
func NewCluster(size int) (*Cluster, error) {
	if size < 1 {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "cluster size %d, want at least 1", size)
	}
	return &Cluster{size: size, fabric: newMemFabric(size)}, nil
}

// Size reports the number of participants.
func (c *Cluster) Size() int { return c.size }

// Topology returns the identity of one participant on the shared fabric.
func (c *Cluster) Topology(rank int) (*Topology, error) {
	return NewTopology(rank, c.size, &memTransport{fabric: c.fabric, rank: rank})
}

// Run starts fn once per participant, each on its own goroutine, and
// waits for all of them. The first failure is returned, wrapped with
// the rank it came from.
func (c *Cluster) Run(fn func(topo *Topology) error) error {
	errs := make([]error, c.size)

	var wg sync.WaitGroup
	for rank := 0; rank < c.size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			topo, err := c.Topology(rank)
			if err != nil {
				errs[rank] = err
				return
			}
			errs[rank] = fn(topo)
		}(rank)
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil {
			return errors.Wrapf(err, "participant %d", rank)
		}
	}
	return nil
}
