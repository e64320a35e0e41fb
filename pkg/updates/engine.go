// Package updates finds releases whose container image, or chart, should be
// upgraded.
package updates

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/oleksiyp/kubecd/pkg/model"
	"github.com/oleksiyp/kubecd/pkg/registry"
	"github.com/oleksiyp/kubecd/pkg/semver"
	"github.com/oleksiyp/kubecd/pkg/tree"
	"github.com/oleksiyp/kubecd/pkg/values"
)

const tracerName = "github.com/oleksiyp/kubecd/pkg/updates"

// TagLister lists the tags of an image repository with their timestamps.
type TagLister interface {
	ListTags(ctx context.Context, repo string) (map[string]int64, error)
}

// ImageUpdate is a proposed change of the image tag of one release.
type ImageUpdate struct {
	Release     string `json:"release"`
	Environment string `json:"environment"`
	File        string `json:"file"`
	TagValueKey string `json:"tagValue"`
	ImageRepo   string `json:"imageRepo"`
	OldTag      string `json:"oldTag"`
	NewTag      string `json:"newTag"`
	Reason      string `json:"reason"`
}

// Failure is a release that could not be checked.
type Failure struct {
	Environment string `json:"environment"`
	Release     string `json:"release"`
	Error       string `json:"error"`
	Err         error  `json:"-"`
}

// Report is the result of an update scan.
type Report struct {
	// Updates is keyed by the releases file that declares the release.
	Updates  map[string][]ImageUpdate `json:"updates"`
	Failures []Failure                `json:"failures,omitempty"`
}

func newReport() *Report {
	return &Report{Updates: make(map[string][]ImageUpdate)}
}

// Count returns the number of updates.
func (r *Report) Count() int {
	n := 0
	for _, updates := range r.Updates {
		n += len(updates)
	}
	return n
}

// Files returns the releases files with updates, sorted.
func (r *Report) Files() []string {
	files := make([]string, 0, len(r.Updates))
	for file := range r.Updates {
		files = append(files, file)
	}
	sort.Strings(files)
	return files
}

// Merge adds the contents of other to r.
func (r *Report) Merge(other *Report) {
	for file, updates := range other.Updates {
		r.Updates[file] = append(r.Updates[file], updates...)
	}
	r.Failures = append(r.Failures, other.Failures...)
}

// Engine checks releases of one loaded config for image updates.
type Engine struct {
	cfg      *model.Config
	resolver *values.Resolver
	tags     TagLister
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewEngine creates an update engine.
func NewEngine(cfg *model.Config, resolver *values.Resolver, tags TagLister, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		resolver: resolver,
		tags:     tags,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// Config returns the config the engine works on.
func (e *Engine) Config() *model.Config {
	return e.cfg
}

// FindUpdatesForEnvironment checks every release of env.
func (e *Engine) FindUpdatesForEnvironment(ctx context.Context, env *model.Environment) (*Report, error) {
	return e.FindUpdatesForReleases(ctx, env, env.Releases)
}

// FindUpdatesForReleases checks releases of env against their registries. A
// release that cannot be checked is recorded in Report.Failures and does not
// stop the scan; the returned error is only set when ctx is done.
func (e *Engine) FindUpdatesForReleases(ctx context.Context, env *model.Environment, releases []*model.Release) (*Report, error) {
	ctx, span := e.tracer.Start(ctx, "updates.FindUpdates", trace.WithAttributes(
		attribute.String("environment", env.Name),
		attribute.Int("releases", len(releases))))
	defer span.End()

	report := newReport()
	tags := newTagCache(e.tags)
	for _, rel := range releases {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		updates, err := e.checkRelease(ctx, env, rel, tags)
		if err != nil {
			e.logger.Warn("Failed to check release for updates",
				zap.String("environment", env.Name),
				zap.String("release", rel.Name),
				zap.Error(err))
			report.Failures = append(report.Failures, Failure{
				Environment: env.Name,
				Release:     rel.Name,
				Error:       err.Error(),
				Err:         err,
			})
			continue
		}
		if len(updates) > 0 {
			report.Updates[rel.FromFile] = append(report.Updates[rel.FromFile], updates...)
		}
	}
	span.SetAttributes(attribute.Int("updates", report.Count()), attribute.Int("failures", len(report.Failures)))
	return report, nil
}

func (e *Engine) checkRelease(ctx context.Context, env *model.Environment, rel *model.Release, tags *tagCache) ([]ImageUpdate, error) {
	triggers := rel.ImageTriggers()
	if len(triggers) == 0 {
		return nil, nil
	}

	ctx, span := e.tracer.Start(ctx, "updates.CheckRelease", trace.WithAttributes(
		attribute.String("environment", env.Name),
		attribute.String("release", rel.Name)))
	defer span.End()

	vals, err := e.resolver.Resolve(ctx, rel, env, true)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var updates []ImageUpdate
	for _, trigger := range triggers {
		repo, tag, ok := e.currentImage(env, rel, trigger, vals)
		if !ok {
			continue
		}
		available, err := tags.get(ctx, repo)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		newTag, ok := BestUpgrade(tag, available, trigger.Track, available[tag])
		if !ok || newTag == tag {
			continue
		}
		updates = append(updates, ImageUpdate{
			Release:     rel.Name,
			Environment: env.Name,
			File:        rel.FromFile,
			TagValueKey: trigger.TagValueKey(),
			ImageRepo:   repo,
			OldTag:      tag,
			NewTag:      newTag,
			Reason:      reason(trigger.Track, tag, newTag),
		})
	}
	return updates, nil
}

// currentImage reads the image repository and tag a trigger points at. The
// trigger is skipped when the repository or tag is not in the values.
func (e *Engine) currentImage(env *model.Environment, rel *model.Release, trigger *model.ImageTrigger, vals tree.Values) (repo, tag string, ok bool) {
	repo, ok = tree.GetString(trigger.RepoValueKey(), vals)
	if !ok {
		e.logger.Debug("Image repository not found in values, skipping trigger",
			zap.String("environment", env.Name),
			zap.String("release", rel.Name),
			zap.String("key", trigger.RepoValueKey()))
		return "", "", false
	}
	if prefix, found := tree.GetString(trigger.RepoPrefixValueKey(), vals); found {
		repo = prefix + repo
	}
	tag, ok = tree.GetString(trigger.TagValueKey(), vals)
	if !ok {
		e.logger.Debug("Image tag not found in values, skipping trigger",
			zap.String("environment", env.Name),
			zap.String("release", rel.Name),
			zap.String("key", trigger.TagValueKey()))
		return "", "", false
	}
	return repo, tag, true
}

// ReleaseWantsTagUpdate reports the updates rel would take if candidate were
// pushed for each of its watched images.
func (e *Engine) ReleaseWantsTagUpdate(ctx context.Context, env *model.Environment, rel *model.Release, candidate string) ([]ImageUpdate, error) {
	return e.wantsUpdate(ctx, env, rel, "", candidate)
}

// ReleaseWantsImageUpdate is ReleaseWantsTagUpdate restricted to triggers
// watching the repository of ref.
func (e *Engine) ReleaseWantsImageUpdate(ctx context.Context, env *model.Environment, rel *model.Release, ref registry.ImageRef) ([]ImageUpdate, error) {
	return e.wantsUpdate(ctx, env, rel, registry.NormalizeRepo(ref.Repo), ref.Tag)
}

func (e *Engine) wantsUpdate(ctx context.Context, env *model.Environment, rel *model.Release, onlyRepo, candidate string) ([]ImageUpdate, error) {
	triggers := rel.ImageTriggers()
	if len(triggers) == 0 {
		return nil, nil
	}
	vals, err := e.resolver.Resolve(ctx, rel, env, true)
	if err != nil {
		return nil, err
	}

	var updates []ImageUpdate
	for _, trigger := range triggers {
		repo, current, ok := e.currentImage(env, rel, trigger, vals)
		if !ok {
			continue
		}
		if onlyRepo != "" && registry.NormalizeRepo(repo) != onlyRepo {
			continue
		}
		wanted, why := IsWantedTag(current, candidate, trigger.Track)
		if !wanted {
			continue
		}
		updates = append(updates, ImageUpdate{
			Release:     rel.Name,
			Environment: env.Name,
			File:        rel.FromFile,
			TagValueKey: trigger.TagValueKey(),
			ImageRepo:   repo,
			OldTag:      current,
			NewTag:      candidate,
			Reason:      why,
		})
	}
	return updates, nil
}

// IsWantedTag decides whether a single observed candidate tag replaces
// current under track, and explains why.
func IsWantedTag(current, candidate string, track semver.Track) (bool, string) {
	if candidate == "" || candidate == current {
		return false, ""
	}
	if !semver.IsSemver(current) {
		return true, fmt.Sprintf("current tag %q is not semver, any observed tag is considered newer", current)
	}
	if track == semver.Newest {
		return true, "track=Newest, any observed tag is considered newer"
	}
	candidateVersion, err := semver.Parse(candidate)
	if err != nil {
		return false, ""
	}
	currentVersion, _ := semver.Parse(current)
	if !semver.IsWantedUpgrade(currentVersion, candidateVersion, track) {
		return false, ""
	}
	return true, reason(track, current, candidate)
}

func reason(track semver.Track, oldTag, newTag string) string {
	if track == semver.Newest {
		return fmt.Sprintf("track=Newest, %q was pushed after %q", newTag, oldTag)
	}
	return fmt.Sprintf("track=%s, %q > %q", track, newTag, oldTag)
}

// tagCache memoizes tag listings, including failures, for one scan.
type tagCache struct {
	lister TagLister
	tags   map[string]map[string]int64
	errs   map[string]error
}

func newTagCache(lister TagLister) *tagCache {
	return &tagCache{
		lister: lister,
		tags:   make(map[string]map[string]int64),
		errs:   make(map[string]error),
	}
}

func (c *tagCache) get(ctx context.Context, repo string) (map[string]int64, error) {
	if tags, ok := c.tags[repo]; ok {
		return tags, nil
	}
	if err, ok := c.errs[repo]; ok {
		return nil, err
	}
	tags, err := c.lister.ListTags(ctx, repo)
	if err != nil {
		c.errs[repo] = err
		return nil, err
	}
	c.tags[repo] = tags
	return tags, nil
}
