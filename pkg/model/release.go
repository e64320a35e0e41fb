package model

import (
	"fmt"

	"github.com/oleksiyp/kubecd/pkg/schema"
	"github.com/oleksiyp/kubecd/pkg/semver"
)

const (
	DefaultTagValue        = "image.tag"
	DefaultRepoValue       = "image.repository"
	DefaultRepoPrefixValue = "image.prefix"
)

// Release is one deployable unit of an environment: a helm chart or a set of
// plain Kubernetes resource files.
type Release struct {
	Name              string
	Chart             *Chart
	ValuesFile        string
	Values            []ChartValue
	SkipDefaultValues bool
	ResourceFiles     []string
	Triggers          []Trigger

	// FromFile is the releases file the release was declared in.
	FromFile string
	// Environment is the name of the owning environment.
	Environment string
}

// Chart is either a local chart directory or a repository reference with a
// pinned version.
type Chart struct {
	Dir       string
	Reference string
	Version   string
}

// IsLocal reports whether the chart is a directory on disk.
func (c *Chart) IsLocal() bool {
	return c.Dir != ""
}

// ChartValue sets key to a literal value or to a value looked up elsewhere.
type ChartValue struct {
	Key       string
	Value     *string
	ValueFrom *ValueRef
}

// ValueRef points at an externally resolved value.
type ValueRef struct {
	GCEAddress *GCEAddressRef
}

// GCEAddressRef names a reserved Google Compute Engine IP address.
type GCEAddressRef struct {
	Name     string
	IsGlobal bool
}

// Trigger tells the update engine what to watch for a release.
type Trigger struct {
	Image *ImageTrigger
	Chart *ChartTrigger
}

// ImageTrigger watches a container image whose repository and tag live at
// dotted paths in the release values.
type ImageTrigger struct {
	TagValue        string
	RepoValue       string
	RepoPrefixValue string
	Track           semver.Track
}

// TagValueKey is the values path of the image tag.
func (t *ImageTrigger) TagValueKey() string {
	if t.TagValue == "" {
		return DefaultTagValue
	}
	return t.TagValue
}

// RepoValueKey is the values path of the image repository.
func (t *ImageTrigger) RepoValueKey() string {
	if t.RepoValue == "" {
		return DefaultRepoValue
	}
	return t.RepoValue
}

// RepoPrefixValueKey is the values path of an optional repository prefix.
func (t *ImageTrigger) RepoPrefixValueKey() string {
	if t.RepoPrefixValue == "" {
		return DefaultRepoPrefixValue
	}
	return t.RepoPrefixValue
}

// ChartTrigger watches the chart version of a release.
type ChartTrigger struct {
	Track semver.Track
}

// AbsPath resolves path relative to the file the release was declared in.
func (r *Release) AbsPath(path string) string {
	return ResolvePathFromFile(path, r.FromFile)
}

// ImageTriggers returns the enabled image triggers. A trigger with no track is
// disabled.
func (r *Release) ImageTriggers() []*ImageTrigger {
	var out []*ImageTrigger
	for _, t := range r.Triggers {
		if t.Image != nil && t.Image.Track != "" {
			out = append(out, t.Image)
		}
	}
	return out
}

// ChartTriggers returns the enabled chart triggers.
func (r *Release) ChartTriggers() []*ChartTrigger {
	var out []*ChartTrigger
	for _, t := range r.Triggers {
		if t.Chart != nil && t.Chart.Track != "" {
			out = append(out, t.Chart)
		}
	}
	return out
}

func newRelease(obj schema.Object, file, envName string) (*Release, error) {
	name, _ := obj.String("name")
	if name == "" {
		return nil, validationErrorf(file, "release without a name")
	}
	rel := &Release{
		Name:              name,
		ValuesFile:        obj.StringOr("valuesFile", ""),
		SkipDefaultValues: obj.Bool("skipDefaultValues"),
		ResourceFiles:     obj.Strings("resourceFiles"),
		FromFile:          file,
		Environment:       envName,
	}

	hasChart := obj.Has("chart")
	switch {
	case hasChart && len(rel.ResourceFiles) > 0:
		return nil, validationErrorf(file, `release %q: must define only one of "chart" or "resourceFiles"`, name)
	case !hasChart && len(rel.ResourceFiles) == 0:
		return nil, validationErrorf(file, `release %q: must define either "chart" or "resourceFiles"`, name)
	}

	if chartObj, ok := obj.Struct("chart"); ok {
		chart := &Chart{
			Dir:       chartObj.StringOr("dir", ""),
			Reference: chartObj.StringOr("reference", ""),
			Version:   chartObj.StringOr("version", ""),
		}
		if (chart.Dir == "") == (chart.Reference == "") {
			return nil, validationErrorf(file, `release %q: chart must define exactly one of "dir" or "reference"`, name)
		}
		if chart.Reference != "" && chart.Version == "" {
			return nil, validationErrorf(file, "release %q: must have a chart.version", name)
		}
		rel.Chart = chart
	}

	values, err := newChartValues(obj.Structs("values"))
	if err != nil {
		return nil, validationErrorf(file, "release %q: %v", name, err)
	}
	rel.Values = values

	triggerObjs := obj.Structs("triggers")
	if single, ok := obj.Struct("trigger"); ok {
		if len(triggerObjs) > 0 {
			return nil, validationErrorf(file, `release %q: must define only one of "trigger" or "triggers"`, name)
		}
		triggerObjs = []schema.Object{single}
	}
	for _, t := range triggerObjs {
		trigger, err := newTrigger(t)
		if err != nil {
			return nil, validationErrorf(file, "release %q: %v", name, err)
		}
		rel.Triggers = append(rel.Triggers, trigger)
	}
	return rel, nil
}

func newChartValues(objs []schema.Object) ([]ChartValue, error) {
	values := make([]ChartValue, 0, len(objs))
	for _, v := range objs {
		key, _ := v.String("key")
		if key == "" {
			return nil, fmt.Errorf("value without a key")
		}
		cv := ChartValue{Key: key}
		if s, ok := v.String("value"); ok {
			cv.Value = &s
		}
		if from, ok := v.Struct("valueFrom"); ok {
			gce, _ := from.Struct("gceResource")
			addr, ok := gce.Struct("address")
			if !ok {
				return nil, fmt.Errorf("value %q: valueFrom needs gceResource.address", key)
			}
			cv.ValueFrom = &ValueRef{GCEAddress: &GCEAddressRef{
				Name:     addr.StringOr("name", ""),
				IsGlobal: addr.Bool("isGlobal"),
			}}
		}
		if cv.Value != nil && cv.ValueFrom != nil {
			return nil, fmt.Errorf(`value %q: must define only one of "value" or "valueFrom"`, key)
		}
		values = append(values, cv)
	}
	return values, nil
}

func newTrigger(obj schema.Object) (Trigger, error) {
	var trigger Trigger
	if image, ok := obj.Struct("image"); ok {
		track, err := semver.ParseTrack(image.StringOr("track", ""))
		if err != nil {
			return trigger, err
		}
		trigger.Image = &ImageTrigger{
			TagValue:        image.StringOr("tagValue", ""),
			RepoValue:       image.StringOr("repoValue", ""),
			RepoPrefixValue: image.StringOr("repoPrefixValue", ""),
			Track:           track,
		}
	}
	if chart, ok := obj.Struct("chart"); ok {
		track, err := semver.ParseTrack(chart.StringOr("track", ""))
		if err != nil {
			return trigger, err
		}
		trigger.Chart = &ChartTrigger{Track: track}
	}
	return trigger, nil
}
