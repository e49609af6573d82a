package mem

// VPNRange is a half-open range of virtual page numbers [Start, End).
type VPNRange struct {
	Start, End VirtPageNum
}

// NewVPNRange builds a range, panicking if start is after end.
func NewVPNRange(start, end VirtPageNum) VPNRange {
	if start > end {
		panic("mem: VPNRange start after end")
	}
	return VPNRange{Start: start, End: end}
}

// Len returns the number of pages the range covers.
func (r VPNRange) Len() int {
	return int(r.End - r.Start)
}

// Contains reports whether vpn falls within the range.
func (r VPNRange) Contains(vpn VirtPageNum) bool {
	return vpn >= r.Start && vpn < r.End
}

// Overlaps reports whether r and other share any page.
func (r VPNRange) Overlaps(other VPNRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// All returns every VPN in the range, in ascending order. Used by callers
// that need to walk a region page by page (mapping, copying, tearing
// down); ranges in this kernel are small enough (a handful of pages to a
// few thousand for RAM identity maps) that materializing isn't a concern.
func (r VPNRange) All() []VirtPageNum {
	out := make([]VirtPageNum, 0, r.Len())
	for v := r.Start; v < r.End; v++ {
		out = append(out, v)
	}
	return out
}
