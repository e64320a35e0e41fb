package updates

import (
	"sort"

	"github.com/hashicorp/go-version"

	"github.com/oleksiyp/kubecd/pkg/semver"
)

// BestUpgrade picks the tag current should be upgraded to, given every
// available tag with its timestamp. currentTimestamp is the timestamp of the
// current tag, zero when the registry does not know it.
//
// With the Newest track the most recently pushed tag wins, ignoring "latest"
// and anything not strictly newer than the current tag; equal timestamps are
// ordered by tag name and the last one wins. The semver tracks select the
// highest version inside the track's range. A current tag that is not a
// version never yields a semver upgrade.
func BestUpgrade(current string, tags map[string]int64, track semver.Track, currentTimestamp int64) (string, bool) {
	names := make([]string, 0, len(tags))
	for tag := range tags {
		names = append(names, tag)
	}
	sort.Strings(names)

	if track == semver.Newest {
		sort.SliceStable(names, func(i, j int) bool { return tags[names[i]] < tags[names[j]] })
		best := ""
		for _, tag := range names {
			if tag == "latest" || tag == current || tags[tag] <= currentTimestamp {
				continue
			}
			best = tag
		}
		return best, best != ""
	}

	if !track.IsSemver() {
		return "", false
	}
	currentVersion, err := semver.Parse(current)
	if err != nil {
		return "", false
	}
	candidates := make([]*version.Version, 0, len(names))
	byVersion := make(map[*version.Version]string, len(names))
	for _, tag := range names {
		v, err := semver.Parse(tag)
		if err != nil {
			continue
		}
		candidates = append(candidates, v)
		byVersion[v] = tag
	}
	best, ok := semver.BestUpgrade(currentVersion, candidates, track)
	if !ok {
		return "", false
	}
	return byVersion[best], true
}
