package match

import (
	"fmt"
	"sort"
	"sync"

	"imagededup/internal/models"
)

// scoreEpsilon treats near-equal composite scores as ties so the
// deterministic tie-break chain decides instead of float noise.
const scoreEpsilon = 1e-6

// Assessor scores an image's quality. Implementations must be safe for
// concurrent use; the detector calls them from multiple workers.
type Assessor interface {
	Assess(img *models.ImageInfo) *models.QualityScore
}

// Detector drives all-pairs comparison over a set of fingerprinted
// images, merges matches into similarity groups with union-find, and
// elects a representative per group by quality score.
//
// The comparison pass is O(n²) in the number of images, each
// comparison O(1) on fixed-width fingerprints. That is fine for
// thousands of images; indexed approximate search for larger
// collections is out of scope, which is why the Matcher sits behind a
// narrow call so it could be swapped without touching grouping.
type Detector struct {
	matcher  *Matcher
	assessor Assessor
	workers  int
}

// NewDetector creates a Detector
func NewDetector(matcher *Matcher, assessor Assessor, workers int) *Detector {
	if workers < 1 {
		workers = 1
	}
	return &Detector{matcher: matcher, assessor: assessor, workers: workers}
}

// Detect groups the given images by consensus similarity and selects a
// representative per group. The returned groups partition the input:
// every image lands in exactly one group, singletons included. Images
// that failed hashing must be excluded by the caller beforehand.
//
// Fingerprint width mismatches are detected before any comparison work
// and abort the run. Either the full pairwise evaluation completes and
// groups are returned, or an error is returned and no partial groups
// escape.
func (d *Detector) Detect(images []*models.ImageInfo) ([]*models.SimilarityGroup, error) {
	n := len(images)
	if n == 0 {
		return nil, nil
	}

	if err := checkFingerprintWidths(images); err != nil {
		return nil, err
	}

	uf := newUnionFind(n)

	if n > 1 {
		if err := d.comparePairs(images, uf); err != nil {
			return nil, err
		}
	}

	groups := collectGroups(images, uf)

	if err := d.scoreGroupMembers(groups); err != nil {
		return nil, err
	}
	for _, g := range groups {
		if err := selectRepresentative(g); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// checkFingerprintWidths verifies every fingerprint set has the same
// bit width before comparison begins
func checkFingerprintWidths(images []*models.ImageInfo) error {
	want := images[0].Fingerprints.Bits()
	for _, img := range images[1:] {
		if got := img.Fingerprints.Bits(); got != want {
			return fmt.Errorf("%w: %s has %d bits, expected %d",
				models.ErrIncompatibleFingerprintSize, img.Path, got, want)
		}
	}
	return nil
}

// comparePairs evaluates every unordered pair (i, j), i < j, in
// parallel over row chunks. Workers only read the published immutable
// fingerprints; matched index pairs are funneled to this goroutine,
// which is the sole writer of the union-find structure.
func (d *Detector) comparePairs(images []*models.ImageInfo, uf *unionFind) error {
	n := len(images)

	rows := make(chan int)
	matches := make(chan [2]int, 256)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for w := 0; w < d.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			failed := false
			for i := range rows {
				if failed {
					continue // keep draining rows so the feeder can finish
				}
				for j := i + 1; j < n; j++ {
					ok, err := d.matcher.Similar(images[i].Fingerprints, images[j].Fingerprints)
					if err != nil {
						errOnce.Do(func() { firstErr = err })
						failed = true
						break
					}
					if ok {
						matches <- [2]int{i, j}
					}
				}
			}
		}()
	}

	go func() {
		for i := 0; i < n-1; i++ {
			rows <- i
		}
		close(rows)
		wg.Wait()
		close(matches)
	}()

	for m := range matches {
		uf.union(m[0], m[1])
	}

	return firstErr
}

// collectGroups turns union-find partitions into groups, ordered and
// numbered by each group's smallest member index for determinism
func collectGroups(images []*models.ImageInfo, uf *unionFind) []*models.SimilarityGroup {
	groupMap := make(map[int][]*models.ImageInfo)
	var order []int
	for i, img := range images {
		root := uf.find(i)
		if _, seen := groupMap[root]; !seen {
			order = append(order, root)
		}
		groupMap[root] = append(groupMap[root], img)
	}

	groups := make([]*models.SimilarityGroup, 0, len(order))
	for idx, root := range order {
		g := &models.SimilarityGroup{
			ID:     idx + 1,
			Images: groupMap[root],
		}
		for _, img := range g.Images {
			img.GroupID = g.ID
		}
		groups = append(groups, g)
	}
	return groups
}

// scoreGroupMembers computes quality scores for every member of groups
// of size two or more. Singletons need no comparison, so they are
// never scored. Assessment is independent per image and runs on a
// worker pool; each result is written once into its own ImageInfo.
func (d *Detector) scoreGroupMembers(groups []*models.SimilarityGroup) error {
	if d.assessor == nil {
		return nil
	}

	var pending []*models.ImageInfo
	for _, g := range groups {
		if g.IsSingleton() {
			continue
		}
		for _, img := range g.Images {
			if img.Quality == nil {
				pending = append(pending, img)
			}
		}
	}
	if len(pending) == 0 {
		return nil
	}

	work := make(chan *models.ImageInfo, len(pending))
	for _, img := range pending {
		work <- img
	}
	close(work)

	var wg sync.WaitGroup
	for w := 0; w < d.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for img := range work {
				img.Quality = d.assessor.Assess(img)
			}
		}()
	}
	wg.Wait()
	return nil
}

// selectRepresentative elects the best-quality member of a group.
// Ties within scoreEpsilon fall through the chain: format priority,
// pixel count, file size, then path, so re-running selection on an
// unchanged group always yields the same representative.
func selectRepresentative(group *models.SimilarityGroup) error {
	if len(group.Images) == 0 {
		return fmt.Errorf("%w: group %d has no members", models.ErrInsufficientData, group.ID)
	}

	if group.IsSingleton() {
		group.Representative = group.Images[0]
		return nil
	}

	sorted := make([]*models.ImageInfo, len(group.Images))
	copy(sorted, group.Images)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]

		var sa, sb float64
		if a.Quality != nil {
			sa = a.Quality.Overall
		}
		if b.Quality != nil {
			sb = b.Quality.Overall
		}
		if diff := sa - sb; diff > scoreEpsilon || diff < -scoreEpsilon {
			return diff > 0
		}

		if pa, pb := models.FormatPriority(a.Format), models.FormatPriority(b.Format); pa != pb {
			return pa > pb
		}
		if a.PixelCount() != b.PixelCount() {
			return a.PixelCount() > b.PixelCount()
		}
		if a.FileSize != b.FileSize {
			return a.FileSize > b.FileSize
		}
		return a.Path < b.Path
	})

	group.Representative = sorted[0]
	group.Rejected = sorted[1:]
	return nil
}

// Union-Find (disjoint-set) with path compression and union by rank.
// Near-constant amortized cost per operation, so the merge pass after
// the O(n²) comparisons is effectively linear.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	rank := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: rank}
}

func (uf *unionFind) find(x int) int {
	if uf.parent[x] != x {
		uf.parent[x] = uf.find(uf.parent[x]) // Path compression
	}
	return uf.parent[x]
}

func (uf *unionFind) union(x, y int) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	// Union by rank
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}
