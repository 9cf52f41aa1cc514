package target

import (
	"fmt"
	"sort"

	"github.com/golang/glog"
)

// WorkingAreaPool hands out blocks of a fixed RAM window.
type WorkingAreaPool struct {
	base  uint32
	size  uint32
	inUse []*WorkingArea
}

// NewWorkingAreaPool creates a pool over [base, base+size).
func NewWorkingAreaPool(base, size uint32) *WorkingAreaPool {
	return &WorkingAreaPool{base: base, size: size &^ 3}
}

// Alloc reserves size bytes, rounded up to a word. It returns
// ErrResourceUnavailable when no free hole is large enough.
func (p *WorkingAreaPool) Alloc(size uint32) (*WorkingArea, error) {
	if size == 0 {
		return nil, fmt.Errorf("working area of zero bytes: %w", ErrResourceUnavailable)
	}
	size = (size + 3) &^ 3

	addr := p.base
	for _, a := range p.inUse {
		if a.Address-addr >= size {
			break
		}
		addr = a.Address + a.Size
	}
	if p.base+p.size-addr < size || addr > p.base+p.size {
		glog.V(2).Infof("no %d byte working area (pool 0x%08X+%d, %d in use)", size, p.base, p.size, len(p.inUse))
		return nil, ErrResourceUnavailable
	}

	area := &WorkingArea{Address: addr, Size: size}
	p.inUse = append(p.inUse, area)
	sort.Slice(p.inUse, func(i, j int) bool {
		return p.inUse[i].Address < p.inUse[j].Address
	})
	glog.V(2).Infof("allocated working area %s", area)
	return area, nil
}

// Free returns an area to the pool.
func (p *WorkingAreaPool) Free(area *WorkingArea) error {
	for i, a := range p.inUse {
		if a == area {
			p.inUse = append(p.inUse[:i], p.inUse[i+1:]...)
			glog.V(2).Infof("freed working area %s", area)
			return nil
		}
	}
	return fmt.Errorf("working area %s not allocated from this pool", area)
}

// InUse returns the number of outstanding allocations.
func (p *WorkingAreaPool) InUse() int {
	return len(p.inUse)
}
