package cnet

// OutlierSet tracks point indices flagged as outliers. Once a point is
// inserted it remains an outlier for all subsequent passes (spec §3).
// GCPs must never be inserted; Insert panics if asked to (a programmer
// error in the caller, since the network already knows each point's
// Kind — this is not a runtime condition a user can trigger).
type OutlierSet struct {
	set map[int]struct{}
}

// NewOutlierSet builds an empty set.
func NewOutlierSet() OutlierSet {
	return OutlierSet{set: map[int]struct{}{}}
}

// Insert adds pointID to the set. isGCP must reflect the point's actual
// Kind; passing true for a GCP panics.
func (o *OutlierSet) Insert(pointID int, isGCP bool) {
	if isGCP {
		panic("cnet: attempted to mark a GCP as an outlier")
	}
	if o.set == nil {
		o.set = map[int]struct{}{}
	}
	o.set[pointID] = struct{}{}
}

// Contains reports whether pointID is flagged as an outlier.
func (o *OutlierSet) Contains(pointID int) bool {
	_, ok := o.set[pointID]
	return ok
}

// Len returns the number of outlier points.
func (o *OutlierSet) Len() int { return len(o.set) }

// Snapshot returns a copy of the current member IDs.
func (o *OutlierSet) Snapshot() map[int]struct{} {
	out := make(map[int]struct{}, len(o.set))
	for k := range o.set {
		out[k] = struct{}{}
	}
	return out
}

// OverlapFilter restricts which camera pairs may contribute matches to
// the network, implementing the overlap-limit/overlap-list configuration
// option (SPEC_FULL.md §10). Callers consult AllowsPair before a
// candidate match pair's observations ever reach Network.AddObservation.
type OverlapFilter struct {
	allowedPairs map[[2]int]struct{} // camera-pair allow-list, nil means "all pairs"
}

// NewOverlapFilter builds a filter restricted to the given camera index
// pairs (order-independent). An empty/nil list means "allow everything".
func NewOverlapFilter(pairs [][2]int) *OverlapFilter {
	if len(pairs) == 0 {
		return nil
	}
	f := &OverlapFilter{allowedPairs: map[[2]int]struct{}{}}
	for _, p := range pairs {
		a, b := p[0], p[1]
		if a > b {
			a, b = b, a
		}
		f.allowedPairs[[2]int{a, b}] = struct{}{}
	}
	return f
}

// AllowsPair reports whether the camera pair (a, b) is permitted to
// contribute matches to the network.
func (f *OverlapFilter) AllowsPair(a, b int) bool {
	if f == nil {
		return true
	}
	if a > b {
		a, b = b, a
	}
	_, ok := f.allowedPairs[[2]int{a, b}]
	return ok
}
