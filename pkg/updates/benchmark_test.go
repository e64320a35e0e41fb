package updates

import (
	"fmt"
	"testing"

	"github.com/oleksiyp/kubecd/pkg/model"
	"github.com/oleksiyp/kubecd/pkg/semver"
)

// BenchmarkBestUpgrade benchmarks tag selection over a large tag list
func BenchmarkBestUpgrade(b *testing.B) {
	tags := make(map[string]int64, 1000)
	for i := 0; i < 1000; i++ {
		tags[fmt.Sprintf("%d.%d.%d", i/100, (i/10)%10, i%10)] = int64(i)
	}

	for _, track := range []semver.Track{semver.PatchLevel, semver.MinorVersion, semver.Newest} {
		b.Run(string(track), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				BestUpgrade("3.1.1", tags, track, tags["3.1.1"])
			}
		})
	}
}

// BenchmarkFilter benchmarks filtering releases
func BenchmarkFilter(b *testing.B) {
	releases := make([]*model.Release, 100)
	for i := range releases {
		releases[i] = &model.Release{
			Name:        fmt.Sprintf("release-%d", i),
			Environment: []string{"prod", "staging"}[i%2],
		}
	}
	names := NamesFilter([]string{"release-10", "release-20", "release-31"})
	env := EnvironmentFilter("prod")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Filter(releases, env, names)
	}
}
