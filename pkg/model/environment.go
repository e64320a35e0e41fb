package model

// Environment is a namespace on a cluster together with the releases
// deployed into it.
type Environment struct {
	Name              string
	ClusterName       string
	KubeNamespace     string
	ReleasesFiles     []string
	DefaultValuesFile string
	DefaultValues     []ChartValue

	// Releases is the flattened list from every releases file.
	Releases []*Release
	// ResourceFiles are the deprecated top-level resourceFiles of releases
	// files, already resolved to absolute paths.
	ResourceFiles []string
	Cluster       *Cluster
	// FromFile is the environments file the environment was declared in.
	FromFile string

	releases map[string]*Release
}

// Release looks up a release by name.
func (e *Environment) Release(name string) (*Release, error) {
	if rel, ok := e.releases[name]; ok {
		return rel, nil
	}
	return nil, &NotFoundError{Kind: "release", Name: name}
}

// KubeContext is the kubectl context name of the environment.
func (e *Environment) KubeContext() string {
	return KubeContextName(e.Name)
}

// AbsPath resolves path relative to the environments file.
func (e *Environment) AbsPath(path string) string {
	return ResolvePathFromFile(path, e.FromFile)
}
