package updates

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oleksiyp/kubecd/pkg/semver"
)

func TestBestUpgradeSemverTracks(t *testing.T) {
	tags := map[string]int64{"3.1.2": 0, "3.3.1": 0, "4.0.0": 0, "latest": 0, "not-a-version": 0}

	tests := []struct {
		track semver.Track
		want  string
	}{
		{semver.PatchLevel, "3.1.2"},
		{semver.MinorVersion, "3.3.1"},
		{semver.MajorVersion, "4.0.0"},
	}
	for _, tt := range tests {
		t.Run(string(tt.track), func(t *testing.T) {
			got, ok := BestUpgrade("3.1.1", tags, tt.track, 0)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBestUpgradeKeepsTagSpelling(t *testing.T) {
	got, ok := BestUpgrade("v1.0.0", map[string]int64{"v1.0.1": 0, "v1.0.0": 0}, semver.PatchLevel, 0)
	assert.True(t, ok)
	assert.Equal(t, "v1.0.1", got)
}

func TestBestUpgradeNonSemverCurrent(t *testing.T) {
	_, ok := BestUpgrade("master", map[string]int64{"1.0.0": 5}, semver.MajorVersion, 0)
	assert.False(t, ok)
}

func TestBestUpgradeNewest(t *testing.T) {
	tests := []struct {
		name    string
		current string
		tags    map[string]int64
		want    string
	}{
		{
			name:    "older candidate is not an upgrade",
			current: "0.9",
			tags:    map[string]int64{"0.9": 2, "1.0": 1},
		},
		{
			name:    "newer candidate wins regardless of version",
			current: "0.9",
			tags:    map[string]int64{"0.9": 1, "1.0": 2},
			want:    "1.0",
		},
		{
			name:    "latest is never selected",
			current: "abc",
			tags:    map[string]int64{"abc": 1, "latest": 9, "def": 5},
			want:    "def",
		},
		{
			name:    "greatest timestamp wins",
			current: "a",
			tags:    map[string]int64{"a": 1, "b": 3, "c": 2},
			want:    "b",
		},
		{
			name:    "ties go to the last tag name",
			current: "a",
			tags:    map[string]int64{"a": 1, "b": 3, "c": 3},
			want:    "c",
		},
		{
			name:    "unknown current tag has timestamp zero",
			current: "gone",
			tags:    map[string]int64{"x": 1},
			want:    "x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BestUpgrade(tt.current, tt.tags, semver.Newest, tt.tags[tt.current])
			assert.Equal(t, tt.want != "", ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsWantedTag(t *testing.T) {
	tests := []struct {
		name      string
		current   string
		candidate string
		track     semver.Track
		want      bool
	}{
		{"non-semver current accepts anything", "master", "feature-x", semver.PatchLevel, true},
		{"non-semver candidate needs Newest", "1.0.0", "feature-x", semver.MajorVersion, false},
		{"non-semver candidate under Newest", "1.0.0", "feature-x", semver.Newest, true},
		{"semver under Newest", "1.0.0", "0.1.0", semver.Newest, true},
		{"in range", "1.0.0", "1.0.5", semver.PatchLevel, true},
		{"out of range", "1.0.0", "1.1.0", semver.PatchLevel, false},
		{"older", "1.0.0", "0.9.0", semver.MajorVersion, false},
		{"same tag", "1.0.0", "1.0.0", semver.Newest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, why := IsWantedTag(tt.current, tt.candidate, tt.track)
			assert.Equal(t, tt.want, got)
			if got {
				assert.NotEmpty(t, why)
			}
		})
	}
}
