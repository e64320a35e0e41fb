// Package patch rewrites releases files in place, keeping comments and the
// order of entries, and reports the rewrite as a unified diff.
package patch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"
)

const indentLevel = 2

// Change sets a value of one release. With Chart set, Value replaces the
// release's chart.version and Key is ignored.
type Change struct {
	Release string
	Key     string
	Value   string
	Chart   bool
}

// ValueChange sets the values entry key of release to value.
func ValueChange(release, key, value string) Change {
	return Change{Release: release, Key: key, Value: value}
}

// ChartVersionChange sets the chart version of release.
func ChartVersionChange(release, version string) Change {
	return Change{Release: release, Value: version, Chart: true}
}

// Apply applies changes to a releases document and returns the re-encoded
// document. Values entries with a matching key are updated; missing entries
// are appended to the release's values list.
func Apply(data []byte, changes []Change) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding releases document")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("empty releases document")
	}
	releases := mapEntry(doc.Content[0], "releases")
	if releases == nil || releases.Kind != yaml.SequenceNode {
		return nil, errors.New(`"releases" is not a list`)
	}

	for _, change := range changes {
		release := findRelease(releases, change.Release)
		if release == nil {
			return nil, errors.Errorf("release %q not found", change.Release)
		}
		if change.Chart {
			if err := setChartVersion(release, change.Value); err != nil {
				return nil, errors.Wrapf(err, "release %q", change.Release)
			}
			continue
		}
		if err := setValue(release, change.Key, change.Value); err != nil {
			return nil, errors.Wrapf(err, "release %q", change.Release)
		}
	}
	return encode(&doc)
}

// File applies changes to the releases file at path and returns a unified
// diff of the result. The file is only rewritten when write is set.
func File(path string, changes []Change, write bool) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %q", path)
	}
	patched, err := Apply(data, changes)
	if err != nil {
		return "", errors.Wrapf(err, "patching %q", path)
	}
	diff, err := Diff(path, data, patched)
	if err != nil {
		return "", err
	}
	if write && diff != "" {
		if err := writeFile(path, patched); err != nil {
			return "", err
		}
	}
	return diff, nil
}

// Indent re-encodes a YAML file with canonical indentation.
func Indent(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %q", path)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.Wrapf(err, "decoding yaml in %q", path)
	}
	out, err := encode(&doc)
	if err != nil {
		return errors.Wrapf(err, "encoding %q", path)
	}
	return writeFile(path, out)
}

// Diff renders a unified diff between two versions of a file.
func Diff(path string, before, after []byte) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	})
}

func encode(doc *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(indentLevel)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFile replaces path atomically through a temporary file in the same
// directory.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"*")
	if err != nil {
		return errors.Wrapf(err, "creating temporary file for %q", path)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing %q", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %q", tmp.Name())
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmp.Name(), info.Mode())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "renaming %q to %q", tmp.Name(), path)
	}
	return nil
}

func findRelease(releases *yaml.Node, name string) *yaml.Node {
	for _, release := range releases.Content {
		n := mapEntry(release, "name")
		if n != nil && n.Kind == yaml.ScalarNode && n.Value == name {
			return release
		}
	}
	return nil
}

func setValue(release *yaml.Node, key, value string) error {
	values := mapEntry(release, "values")
	if values == nil {
		values = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		release.Content = append(release.Content, stringNode("values"), values)
	}
	if values.Kind != yaml.SequenceNode {
		return fmt.Errorf(`"values" is not a list`)
	}
	for _, entry := range values.Content {
		k := mapEntry(entry, "key")
		if k == nil || k.Value != key {
			continue
		}
		if v := mapEntry(entry, "value"); v != nil {
			setScalar(v, value)
			return nil
		}
		entry.Content = append(entry.Content, stringNode("value"), stringNode(value))
		return nil
	}
	values.Content = append(values.Content, &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  "!!map",
		Content: []*yaml.Node{
			stringNode("key"), stringNode(key),
			stringNode("value"), stringNode(value),
		},
	})
	return nil
}

func setChartVersion(release *yaml.Node, version string) error {
	chart := mapEntry(release, "chart")
	if chart == nil || chart.Kind != yaml.MappingNode {
		return fmt.Errorf("release has no chart")
	}
	if v := mapEntry(chart, "version"); v != nil {
		setScalar(v, version)
		return nil
	}
	chart.Content = append(chart.Content, stringNode("version"), stringNode(version))
	return nil
}

func mapEntry(node *yaml.Node, name string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Kind == yaml.ScalarNode && node.Content[i].Value == name {
			return node.Content[i+1]
		}
	}
	return nil
}

// stringNode returns a scalar that decodes back as a string, quoting values
// such as "1.10" or "true" that would otherwise read as another type.
func stringNode(value string) *yaml.Node {
	n := &yaml.Node{}
	setScalar(n, value)
	return n
}

func setScalar(n *yaml.Node, value string) {
	n.Kind = yaml.ScalarNode
	n.Tag = "!!str"
	n.Value = value
	n.Content = nil
	switch {
	case needsQuotes(value):
		n.Style = yaml.DoubleQuotedStyle
	case n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0:
		// author's quoting is kept
	default:
		n.Style = 0
	}
}

func needsQuotes(value string) bool {
	var decoded interface{}
	if err := yaml.Unmarshal([]byte(value), &decoded); err != nil {
		return true
	}
	s, ok := decoded.(string)
	return !ok || s != value
}
