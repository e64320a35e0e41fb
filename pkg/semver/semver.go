// Package semver implements update tracks over semantic version tags.
package semver

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

// Track selects which newer versions count as an upgrade.
type Track string

const (
	// PatchLevel accepts versions below the next minor version.
	PatchLevel Track = "PatchLevel"
	// MinorVersion accepts versions below the next major version.
	MinorVersion Track = "MinorVersion"
	// MajorVersion accepts any greater version.
	MajorVersion Track = "MajorVersion"
	// Newest ignores versions and follows tag timestamps.
	Newest Track = "Newest"
)

// Tracks lists every valid track.
var Tracks = []Track{PatchLevel, MinorVersion, MajorVersion, Newest}

// ParseTrack validates a track name. The empty string parses to the empty
// Track, which callers treat as "disabled".
func ParseTrack(s string) (Track, error) {
	if s == "" {
		return "", nil
	}
	for _, t := range Tracks {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown track %q, expected one of %s", s, trackNames())
}

// IsSemver reports whether the track compares semantic versions.
func (t Track) IsSemver() bool {
	return t == PatchLevel || t == MinorVersion || t == MajorVersion
}

func trackNames() string {
	names := make([]string, len(Tracks))
	for i, t := range Tracks {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// Normalize strips a leading "v".
func Normalize(tag string) string {
	return strings.TrimPrefix(tag, "v")
}

// Parse parses a tag as a version after normalizing it.
func Parse(tag string) (*version.Version, error) {
	return version.NewVersion(Normalize(tag))
}

// IsSemver reports whether tag parses as a version.
func IsSemver(tag string) bool {
	_, err := Parse(tag)
	return err == nil
}

// Constraint returns the range of versions track accepts as upgrades from
// current.
func Constraint(current *version.Version, track Track) (version.Constraints, error) {
	segments := current.Segments()
	var expr string
	switch track {
	case PatchLevel:
		expr = fmt.Sprintf(">%s, <%d.%d.0", current, segments[0], segments[1]+1)
	case MinorVersion:
		expr = fmt.Sprintf(">%s, <%d.0.0", current, segments[0]+1)
	case MajorVersion:
		expr = fmt.Sprintf(">%s", current)
	default:
		return nil, fmt.Errorf("track %q does not select by version", track)
	}
	return version.NewConstraint(expr)
}

// BestUpgrade returns the greatest candidate inside track's range from
// current. Of several equal versions the first one wins.
func BestUpgrade(current *version.Version, candidates []*version.Version, track Track) (*version.Version, bool) {
	constraint, err := Constraint(current, track)
	if err != nil {
		return nil, false
	}
	var best *version.Version
	for _, candidate := range candidates {
		if !constraint.Check(candidate) {
			continue
		}
		if best == nil || candidate.GreaterThan(best) {
			best = candidate
		}
	}
	return best, best != nil
}

// IsWantedUpgrade reports whether candidate alone would be selected as an
// upgrade from current.
func IsWantedUpgrade(current, candidate *version.Version, track Track) bool {
	_, ok := BestUpgrade(current, []*version.Version{candidate}, track)
	return ok
}
