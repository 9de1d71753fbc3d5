// Package cnetbuild chains pairwise match-file correspondences into the
// multi-camera tie points a control network holds, implementing spec
// §4.6's construction policy: a point enters the network only if its
// chain is observed by at least two cameras and those cameras' rays
// subtend at least the configured minimum triangulation angle.
package cnetbuild

import (
	"sort"

	"github.com/FedericoLaMorgia/StereoPipeline/internal/camera"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/cnet"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/matchfile"
	"github.com/FedericoLaMorgia/StereoPipeline/internal/outlier"
)

// PairMatches is one pairwise match file's interest points, keyed by the
// two camera indices it was computed between. Path names the file on
// disk it was read from, empty for in-memory/synthetic input; Rewriter
// skips any PairMatches with an empty Path.
type PairMatches struct {
	CamA, CamB int
	Matches    matchfile.Pair
	Path       string
}

// obsKey names one interest point by the camera and per-image index it
// was detected at.
type obsKey struct {
	cam int
	idx int
}

// unionFind is a minimal disjoint-set over obsKey: two interest points
// matched anywhere end up in the same chain, and chains transitively
// merge across pair files sharing an image.
type unionFind struct {
	parent map[obsKey]obsKey
}

func newUnionFind() *unionFind { return &unionFind{parent: map[obsKey]obsKey{}} }

func (u *unionFind) find(k obsKey) obsKey {
	p, ok := u.parent[k]
	if !ok {
		u.parent[k] = k
		return k
	}
	if p == k {
		return k
	}
	root := u.find(p)
	u.parent[k] = root
	return root
}

func (u *unionFind) union(a, b obsKey) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// Stats summarizes one Build call for the CLI to log.
type Stats struct {
	Chains      int // total union-find chains considered
	TooFewCams  int // dropped: fewer than 2 distinct observing cameras
	FailedAngle int // dropped: triangulation failed the minimum-angle gate
	Added       int // points actually added to the network
}

// Resolution records which (camera, local-index) pair became which
// network point ID, so a later outlier pass can rewrite the original
// match files to drop the indices that ended up excluded. Build's
// chains that never accumulated >= 2 cameras or failed the angle gate
// have no entry here.
type Resolution struct {
	pairs   []PairMatches
	pointOf map[obsKey]int
}

// Rewriter implements outlier.MatchRewriter against the pair files a
// Resolution was built from: each pass, it keeps only the interest-point
// rows whose resolved point ID survived and whose pair falls inside the
// per-file disparity band (spec §4.2 step 4). pctD/factorD are
// config.Config.RemoveOutliersByDisp's Pct/Factor; factorD <= 0 skips
// the disparity filter entirely, keeping only the survivor-ID check.
func (r *Resolution) Rewriter(pctD, factorD float64) *Rewriter {
	return &Rewriter{resolution: r, pctD: pctD, factorD: factorD}
}

// Rewriter adapts a Resolution to outlier.MatchRewriter.
type Rewriter struct {
	resolution *Resolution
	pctD       float64
	factorD    float64
}

// Rewrite overwrites every on-disk pair file this Resolution came from,
// keeping only rows whose resolved point ID is in survivors and, when
// factorD > 0, whose pixel disparity falls inside the band
// outlier.FilterByDisparity computes from that file's own surviving
// rows.
func (rw *Rewriter) Rewrite(survivors map[int]bool) error {
	for _, pm := range rw.resolution.pairs {
		if pm.Path == "" {
			continue
		}
		n := len(pm.Matches.Left)
		if len(pm.Matches.Right) < n {
			n = len(pm.Matches.Right)
		}
		keep := make([]int, 0, n)
		disparities := make([][2]float64, 0, n)
		for i := 0; i < n; i++ {
			leftID, leftOK := rw.resolution.pointOf[obsKey{pm.CamA, i}]
			rightID, rightOK := rw.resolution.pointOf[obsKey{pm.CamB, i}]
			if !leftOK || !rightOK || leftID != rightID {
				continue
			}
			if !survivors[leftID] {
				continue
			}
			keep = append(keep, i)
			disparities = append(disparities, [2]float64{
				pm.Matches.Left[i].X - pm.Matches.Right[i].X,
				pm.Matches.Left[i].Y - pm.Matches.Right[i].Y,
			})
		}

		if rw.factorD > 0 {
			mask := outlier.FilterByDisparity(disparities, rw.pctD, rw.factorD)
			banded := keep[:0]
			for j, idx := range keep {
				if mask[j] {
					banded = append(banded, idx)
				}
			}
			keep = banded
		}

		filtered := matchfile.FilterByIndex(pm.Matches, keep)
		if err := matchfile.WriteFile(pm.Path, filtered); err != nil {
			return err
		}
	}
	return nil
}

// Build unions pairs' interest-point correspondences into chains,
// triangulates each surviving chain's rays against cams, and adds each
// accepted point (plus its observations) to net. Point IDs come from
// nextID, called once per accepted point, in a deterministic order (by
// the chain's union-find root key, compared by camera then index) so
// repeated runs over the
// same input produce the same network. The returned Resolution feeds
// Rewriter for the outlier-loop driver's on-disk match-file rewriting.
func Build(net *cnet.Network, pairs []PairMatches, cams map[int]camera.Model, minAngleDeg float64, nextID func() int) (Stats, *Resolution) {
	uf := newUnionFind()
	pixelOf := map[obsKey][2]float64{}

	for _, pm := range pairs {
		n := len(pm.Matches.Left)
		for i := 0; i < n && i < len(pm.Matches.Right); i++ {
			left := obsKey{pm.CamA, i}
			right := obsKey{pm.CamB, i}
			pixelOf[left] = [2]float64{pm.Matches.Left[i].X, pm.Matches.Left[i].Y}
			pixelOf[right] = [2]float64{pm.Matches.Right[i].X, pm.Matches.Right[i].Y}
			uf.union(left, right)
		}
	}

	chains := map[obsKey]map[int][2]float64{}
	members := map[obsKey][]obsKey{}
	for k, pix := range pixelOf {
		root := uf.find(k)
		obs, ok := chains[root]
		if !ok {
			obs = map[int][2]float64{}
			chains[root] = obs
		}
		obs[k.cam] = pix
		members[root] = append(members[root], k)
	}

	models := make(map[int]cnet.ProjectionMatrixSource, len(cams))
	for id, m := range cams {
		if src, ok := m.(cnet.ProjectionMatrixSource); ok {
			models[id] = src
		}
	}

	roots := make([]obsKey, 0, len(chains))
	for root := range chains {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool {
		if roots[i].cam != roots[j].cam {
			return roots[i].cam < roots[j].cam
		}
		return roots[i].idx < roots[j].idx
	})

	resolution := &Resolution{pairs: pairs, pointOf: map[obsKey]int{}}

	var stats Stats
	for _, root := range roots {
		obs := chains[root]
		stats.Chains++
		if len(obs) < 2 {
			stats.TooFewCams++
			continue
		}
		xyz, ok := cnet.Triangulate(obs, models, minAngleDeg)
		if !ok {
			stats.FailedAngle++
			continue
		}
		id := nextID()
		net.AddPoint(cnet.Point{ID: id, Kind: cnet.Tie, XYZ: xyz})
		for cam, pix := range obs {
			net.AddObservation(cnet.Observation{Cam: cam, Point: id, Pixel: pix})
		}
		for _, k := range members[root] {
			resolution.pointOf[k] = id
		}
		stats.Added++
	}
	return stats, resolution
}
