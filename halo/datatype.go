package halo

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/NicholasBermuda/firedrake/errdefs"
)

// ElemKind names the scalar element type of exchanged data.
type ElemKind int

const (
	Float64 ElemKind = iota
	Float32
	Int32
	Int64
)

func (k ElemKind) String() string {
	switch k {
	case Float64:
		return "float64"
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("elemkind(%d)", int(k))
	}
}

func (k ElemKind) bytes() (int, error) {
	switch k {
	case Float64, Int64:
		return 8, nil
	case Float32, Int32:
		return 4, nil
	default:
		return 0, errors.Wrapf(errdefs.ErrUnsupported, "unknown element kind %s", k)
	}
}

// Datatype describes the exchanged unit for one layout slot: a block of
// BlockSize elements of Kind. Contiguous marks derived multi-element
// blocks, mirroring how wider slots need a composite wire type while a
// single element travels as the base type.
type Datatype struct {
	Kind       ElemKind
	BlockSize  int
	Bytes      int
	Contiguous bool
}

var (
	dtMu      sync.Mutex
	datatypes = map[dtKey]*Datatype{}
)

type dtKey struct {
	kind      ElemKind
	blockSize int
}

// DatatypeFor returns the process-wide descriptor for the given element
// kind and block size. Descriptors are derived once per pair and cached
// for the life of the process, so repeated calls return the same
// pointer; the registry is never invalidated.
func DatatypeFor(kind ElemKind, blockSize int) (*Datatype, error) {
	if blockSize < 1 {
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "block size %d, want at least 1", blockSize)
	}
	elem, err := kind.bytes()
	if err != nil {
		return nil, err
	}

	dtMu.Lock()
	defer dtMu.Unlock()

	key := dtKey{kind: kind, blockSize: blockSize}
	if dt, ok := datatypes[key]; ok {
		return dt, nil
	}
	dt := &Datatype{
		Kind:       kind,
		BlockSize:  blockSize,
		Bytes:      elem * blockSize,
		Contiguous: blockSize > 1,
	}
	datatypes[key] = dt
	return dt, nil
}
