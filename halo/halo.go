// Package halo synchronizes ghost data between the partitions of a
// distributed computation. Each partition owns some mesh points and
// mirrors others; a Halo pushes owned values out to their mirrors and
// gathers mirror contributions back to owners over a star-forest
// communication graph.
package halo

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/NicholasBermuda/firedrake/errdefs"
)

// InsertMode selects how received values combine with local data.
type InsertMode int

const (
	// Write overwrites mirror values with the owner's values.
	Write InsertMode = iota
	// Inc accumulates mirror contributions into the owner's values.
	Inc
)

func (m InsertMode) String() string {
	switch m {
	case Write:
		return "write"
	case Inc:
		return "inc"
	default:
		return fmt.Sprintf("insertmode(%d)", int(m))
	}
}

// PointOwner records that a local point mirrors a point owned by
// another participant.
type PointOwner struct {
	// Point is the mirroring point in the local layout.
	Point int
	// Rank is the owning participant.
	Rank int
	// RemotePoint is the point's index in the owner's layout.
	RemotePoint int
}

// Halo binds a data layout to the communication graph that keeps its
// mirrored points in sync. The star forest is computed once, lazily, on
// the first exchange and cached; a Halo is driven by one goroutine per
// participant, so the cached forest is unguarded.
type Halo struct {
	topo    *Topology
	section *Section
	owners  []PointOwner

	sf *starForest
}

// New builds a halo for a layout. owners lists the local points whose
// values mirror points owned by other participants.
func New(topo *Topology, section *Section, owners []PointOwner) (*Halo, error) {
	if topo == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "topology is nil")
	}
	if section == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "section is nil")
	}
	seen := make(map[int]bool, len(owners))
	for _, o := range owners {
		if o.Point < 0 || o.Point >= section.Points() {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "owner entry for point %d outside layout of %d points", o.Point, section.Points())
		}
		if o.Rank < 0 || o.Rank >= topo.Size() {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "point %d owned by rank %d outside topology of size %d", o.Point, o.Rank, topo.Size())
		}
		if o.Rank == topo.Rank() {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "point %d lists the local participant %d as remote owner", o.Point, o.Rank)
		}
		if o.RemotePoint < 0 {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "point %d has negative remote point %d", o.Point, o.RemotePoint)
		}
		if seen[o.Point] {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "point %d listed as mirror twice", o.Point)
		}
		seen[o.Point] = true
	}
	return &Halo{
		topo:    topo,
		section: section,
		owners:  append([]PointOwner(nil), owners...),
	}, nil
}

// Topology reports the participant identity the halo exchanges over.
func (h *Halo) Topology() *Topology { return h.topo }

// Section reports the layout the halo synchronizes.
func (h *Halo) Section() *Section { return h.section }

// span is a value range in layout units. Exchanges scale spans by the
// data block size.
type span struct {
	offset int
	count  int
}

// starForest is the communication graph for one layout.
type starForest struct {
	// leaves[r] lists local spans mirroring data owned by rank r, in
	// the order rank r sends them.
	leaves map[int][]span
	// roots[r] lists local spans whose values rank r mirrors, in the
	// order rank r asked for them.
	roots map[int][]span
}

// forest returns the cached star forest, building it on first use. The
// build is collective: every participant must enter its first exchange
// before any participant's build can complete.
func (h *Halo) forest() (*starForest, error) {
	if h.sf != nil {
		return h.sf, nil
	}

	me := h.topo.Rank()
	size := h.topo.Size()

	ghosts := make(map[int][]PointOwner, size)
	for _, o := range h.owners {
		ghosts[o.Rank] = append(ghosts[o.Rank], o)
	}
	// Both sides walk a rank's mirrors in remote point order, so the
	// owner's send order and the mirror's receive order agree.
	for _, list := range ghosts {
		sort.Slice(list, func(i, j int) bool {
			if list[i].RemotePoint != list[j].RemotePoint {
				return list[i].RemotePoint < list[j].RemotePoint
			}
			return list[i].Point < list[j].Point
		})
	}

	// Dense handshake: every pair exchanges a request list, possibly
	// empty, so each owner learns which of its points are mirrored.
	for r := 0; r < size; r++ {
		if r == me {
			continue
		}
		points := make([]int, len(ghosts[r]))
		for i, o := range ghosts[r] {
			points[i] = o.RemotePoint
		}
		if err := h.topo.tr.Send(r, tagSetup, Message{Points: points}); err != nil {
			return nil, errors.Wrapf(err, "requesting points from participant %d", r)
		}
	}

	sf := &starForest{
		leaves: make(map[int][]span, size),
		roots:  make(map[int][]span, size),
	}
	for r, list := range ghosts {
		spans := make([]span, len(list))
		for i, o := range list {
			spans[i] = span{offset: h.section.Offset(o.Point), count: h.section.Count(o.Point)}
		}
		sf.leaves[r] = spans
	}
	mirrored := 0
	for r := 0; r < size; r++ {
		if r == me {
			continue
		}
		msg, err := h.topo.tr.Recv(r, tagSetup)
		if err != nil {
			return nil, errors.Wrapf(err, "collecting requests from participant %d", r)
		}
		if len(msg.Points) == 0 {
			continue
		}
		spans := make([]span, len(msg.Points))
		for i, p := range msg.Points {
			if p < 0 || p >= h.section.Points() {
				return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "participant %d mirrors unknown point %d", r, p)
			}
			spans[i] = span{offset: h.section.Offset(p), count: h.section.Count(p)}
		}
		sf.roots[r] = spans
		mirrored += len(spans)
	}
	klog.V(2).Infof("halo: rank %d built star forest: %d mirror points, %d points mirrored elsewhere", me, len(h.owners), mirrored)

	h.sf = sf
	return sf, nil
}

func (h *Halo) checkDat(dat *Dat) error {
	if dat == nil {
		return errors.Wrap(errdefs.ErrInvalidArgument, "dat is nil")
	}
	if dat.BlockSize < 1 {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "block size %d, want at least 1", dat.BlockSize)
	}
	if want := h.section.Size() * dat.BlockSize; len(dat.Values) != want {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "dat holds %d values, layout needs %d", len(dat.Values), want)
	}
	return nil
}

// GlobalToLocalBegin posts the owner-side sends that push owned values
// out to their mirrors. Only the Write insert mode is supported.
func (h *Halo) GlobalToLocalBegin(dat *Dat, mode InsertMode) error {
	if err := h.checkDat(dat); err != nil {
		return err
	}
	if mode != Write {
		return errors.Wrapf(errdefs.ErrUnsupported, "global-to-local exchange with insert mode %s, only write", mode)
	}
	if h.topo.Size() == 1 {
		return nil
	}
	sf, err := h.forest()
	if err != nil {
		return err
	}
	dt, err := DatatypeFor(Float64, dat.BlockSize)
	if err != nil {
		return err
	}
	for r := 0; r < h.topo.Size(); r++ {
		spans := sf.roots[r]
		if len(spans) == 0 {
			continue
		}
		msg := Message{Values: gather(dat, spans, dt.BlockSize)}
		if err := h.topo.tr.Send(r, tagGlobalToLocal, msg); err != nil {
			return errors.Wrapf(err, "sending owned values to participant %d", r)
		}
	}
	return nil
}

// GlobalToLocalEnd completes the mirror-side receives, overwriting
// mirror values with the owners' values. It blocks until every owner's
// message has arrived.
func (h *Halo) GlobalToLocalEnd(dat *Dat, mode InsertMode) error {
	if err := h.checkDat(dat); err != nil {
		return err
	}
	if mode != Write {
		return errors.Wrapf(errdefs.ErrUnsupported, "global-to-local exchange with insert mode %s, only write", mode)
	}
	if h.topo.Size() == 1 {
		return nil
	}
	sf, err := h.forest()
	if err != nil {
		return err
	}
	dt, err := DatatypeFor(Float64, dat.BlockSize)
	if err != nil {
		return err
	}
	for r := 0; r < h.topo.Size(); r++ {
		spans := sf.leaves[r]
		if len(spans) == 0 {
			continue
		}
		msg, err := h.topo.tr.Recv(r, tagGlobalToLocal)
		if err != nil {
			return errors.Wrapf(err, "receiving owned values from participant %d", r)
		}
		if err := scatter(dat, spans, dt.BlockSize, msg.Values, Write); err != nil {
			return errors.Wrapf(err, "applying values from participant %d", r)
		}
	}
	return nil
}

// LocalToGlobalBegin posts the mirror-side sends that push mirror
// contributions back to their owners. Only the Inc insert mode is
// supported.
func (h *Halo) LocalToGlobalBegin(dat *Dat, mode InsertMode) error {
	if err := h.checkDat(dat); err != nil {
		return err
	}
	if mode != Inc {
		return errors.Wrapf(errdefs.ErrUnsupported, "local-to-global exchange with insert mode %s, only inc", mode)
	}
	if h.topo.Size() == 1 {
		return nil
	}
	sf, err := h.forest()
	if err != nil {
		return err
	}
	dt, err := DatatypeFor(Float64, dat.BlockSize)
	if err != nil {
		return err
	}
	for r := 0; r < h.topo.Size(); r++ {
		spans := sf.leaves[r]
		if len(spans) == 0 {
			continue
		}
		msg := Message{Values: gather(dat, spans, dt.BlockSize)}
		if err := h.topo.tr.Send(r, tagLocalToGlobal, msg); err != nil {
			return errors.Wrapf(err, "sending contributions to participant %d", r)
		}
	}
	return nil
}

// LocalToGlobalEnd completes the owner-side receives, accumulating
// mirror contributions into the owned values. It blocks until every
// mirror's message has arrived.
func (h *Halo) LocalToGlobalEnd(dat *Dat, mode InsertMode) error {
	if err := h.checkDat(dat); err != nil {
		return err
	}
	if mode != Inc {
		return errors.Wrapf(errdefs.ErrUnsupported, "local-to-global exchange with insert mode %s, only inc", mode)
	}
	if h.topo.Size() == 1 {
		return nil
	}
	sf, err := h.forest()
	if err != nil {
		return err
	}
	dt, err := DatatypeFor(Float64, dat.BlockSize)
	if err != nil {
		return err
	}
	for r := 0; r < h.topo.Size(); r++ {
		spans := sf.roots[r]
		if len(spans) == 0 {
			continue
		}
		msg, err := h.topo.tr.Recv(r, tagLocalToGlobal)
		if err != nil {
			return errors.Wrapf(err, "receiving contributions from participant %d", r)
		}
		if err := scatter(dat, spans, dt.BlockSize, msg.Values, Inc); err != nil {
			return errors.Wrapf(err, "accumulating values from participant %d", r)
		}
	}
	return nil
}

func gather(dat *Dat, spans []span, bs int) []float64 {
	n := 0
	for _, sp := range spans {
		n += sp.count * bs
	}
	buf := make([]float64, 0, n)
	for _, sp := range spans {
		buf = append(buf, dat.Values[sp.offset*bs:(sp.offset+sp.count)*bs]...)
	}
	return buf
}

func scatter(dat *Dat, spans []span, bs int, values []float64, mode InsertMode) error {
	n := 0
	for _, sp := range spans {
		n += sp.count * bs
	}
	if len(values) != n {
		return errors.Wrapf(errdefs.ErrInvalidArgument, "received %d values, want %d", len(values), n)
	}
	i := 0
	for _, sp := range spans {
		lo := sp.offset * bs
		for k := 0; k < sp.count*bs; k++ {
			if mode == Inc {
				dat.Values[lo+k] += values[i]
			} else {
				dat.Values[lo+k] = values[i]
			}
			i++
		}
	}
	return nil
}
