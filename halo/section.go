package halo

import (
	"github.com/pkg/errors"

	"github.com/NicholasBermuda/firedrake/errdefs"
)

// Section maps the mesh points of one partition to value ranges in a
// flat buffer. Counts are fixed at construction and offsets are their
// running sum, so a point's values occupy [Offset(p), Offset(p)+Count(p)).
type Section struct {
	offsets []int
	counts  []int
	size    int
}

// NewSection builds a layout from per-point value counts.
func NewSection(counts []int) (*Section, error) {
	s := &Section{
		offsets: make([]int, len(counts)),
		counts:  make([]int, len(counts)),
	}
	for p, n := range counts {
		if n < 0 {
			return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "point %d has negative count %d", p, n)
		}
		s.offsets[p] = s.size
		s.counts[p] = n
		s.size += n
	}
	return s, nil
}

// Points reports the number of mesh points in the layout.
func (s *Section) Points() int { return len(s.counts) }

// Offset reports the first value index of point p.
func (s *Section) Offset(p int) int { return s.offsets[p] }

// Count reports the number of values point p owns.
func (s *Section) Count(p int) int { return s.counts[p] }

// Size reports the total number of values in the layout.
func (s *Section) Size() int { return s.size }

// Dat is partition-local data laid out by a Section, with BlockSize
// values stored per layout slot.
type Dat struct {
	BlockSize int
	Values    []float64
}

// NewDat allocates a zeroed buffer sized for the layout.
func NewDat(section *Section, blockSize int) (*Dat, error) {
	if section == nil {
		return nil, errors.Wrap(errdefs.ErrInvalidArgument, "section is nil")
	}
	if blockSize < 1 {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "block size %d, want at least 1", blockSize)
	}
	return &Dat{
		BlockSize: blockSize,
		Values:    make([]float64, section.Size()*blockSize),
	}, nil
}
