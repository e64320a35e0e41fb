package model

import (
	"fmt"
	"strings"

	"k8s.io/client-go/tools/clientcmd"

	"github.com/oleksiyp/kubecd/pkg/schema"
)

// Cluster is a Kubernetes cluster reachable through one provider.
type Cluster struct {
	Name       string
	Provider   Provider
	Parameters []ClusterParameter
}

// ClusterParameter is a free-form name/value pair attached to a cluster.
type ClusterParameter struct {
	Name  string
	Value string
}

// Parameter returns the value of a named cluster parameter.
func (c *Cluster) Parameter(name string) (string, bool) {
	for _, p := range c.Parameters {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Provider knows how to obtain credentials for a cluster and how to point a
// kubectl context for an environment at it.
type Provider interface {
	// Kind is the provider key used in configuration, e.g. "gke".
	Kind() string
	ClusterInitCommands() ([][]string, error)
	ContextInitCommands(env *Environment) ([][]string, error)
}

// GKEProvider is a Google Kubernetes Engine cluster, zonal or regional.
type GKEProvider struct {
	Project     string
	ClusterName string
	Zone        string
	Region      string
}

func (p *GKEProvider) Kind() string { return "gke" }

// Location is the zone or region of the cluster.
func (p *GKEProvider) Location() string {
	if p.Region != "" {
		return p.Region
	}
	return p.Zone
}

func (p *GKEProvider) ClusterInitCommands() ([][]string, error) {
	cmd := []string{"gcloud", "container", "clusters", "get-credentials", "--project", p.Project}
	if p.Zone != "" {
		cmd = append(cmd, "--zone", p.Zone)
	} else {
		cmd = append(cmd, "--region", p.Region)
	}
	cmd = append(cmd, p.ClusterName)
	return [][]string{cmd}, nil
}

func (p *GKEProvider) ContextInitCommands(env *Environment) ([][]string, error) {
	name := fmt.Sprintf("gke_%s_%s_%s", p.Project, p.Location(), p.ClusterName)
	return setContext(env, name, name), nil
}

// AKSProvider is an Azure Kubernetes Service cluster.
type AKSProvider struct {
	ResourceGroup string
	ClusterName   string
}

func (p *AKSProvider) Kind() string { return "aks" }

func (p *AKSProvider) ClusterInitCommands() ([][]string, error) {
	return [][]string{{
		"az", "aks", "get-credentials",
		"--resource-group", p.ResourceGroup,
		"--name", p.ClusterName,
	}}, nil
}

func (p *AKSProvider) ContextInitCommands(env *Environment) ([][]string, error) {
	user := fmt.Sprintf("clusterUser_%s_%s", p.ResourceGroup, p.ClusterName)
	return setContext(env, p.ClusterName, user), nil
}

// MinikubeProvider is a local minikube cluster.
type MinikubeProvider struct{}

func (p *MinikubeProvider) Kind() string { return "minikube" }

func (p *MinikubeProvider) ClusterInitCommands() ([][]string, error) { return nil, nil }

func (p *MinikubeProvider) ContextInitCommands(env *Environment) ([][]string, error) {
	return setContext(env, "minikube", "minikube"), nil
}

// DockerForDesktopProvider is the cluster bundled with Docker Desktop.
type DockerForDesktopProvider struct{}

func (p *DockerForDesktopProvider) Kind() string { return "dockerForDesktop" }

func (p *DockerForDesktopProvider) ClusterInitCommands() ([][]string, error) {
	return [][]string{{
		"kubectl", "config", "set-cluster", "docker-for-desktop-cluster",
		"--insecure-skip-tls-verify=true",
		"--server=https://localhost:6443",
	}}, nil
}

func (p *DockerForDesktopProvider) ContextInitCommands(env *Environment) ([][]string, error) {
	return setContext(env, "docker-for-desktop-cluster", "docker-for-desktop"), nil
}

// GitlabProvider is used inside GitLab CI, where the runner has already
// configured cluster credentials under a fixed name.
type GitlabProvider struct{}

func (p *GitlabProvider) Kind() string { return "gitlab" }

func (p *GitlabProvider) ClusterInitCommands() ([][]string, error) { return nil, nil }

func (p *GitlabProvider) ContextInitCommands(env *Environment) ([][]string, error) {
	return setContext(env, "gitlab-deploy", "gitlab-deploy"), nil
}

// ExistingContextProvider reuses the cluster and user of a context already
// present in the kubeconfig.
type ExistingContextProvider struct {
	ContextName string
	// KubeConfig overrides the default kubeconfig lookup ($KUBECONFIG, then
	// ~/.kube/config).
	KubeConfig string
}

func (p *ExistingContextProvider) Kind() string { return "existingContext" }

func (p *ExistingContextProvider) ClusterInitCommands() ([][]string, error) { return nil, nil }

func (p *ExistingContextProvider) ContextInitCommands(env *Environment) ([][]string, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	rules.ExplicitPath = p.KubeConfig
	kubeConfig, err := rules.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	kubeContext, ok := kubeConfig.Contexts[p.ContextName]
	if !ok {
		return nil, fmt.Errorf("context %q not found in kubeconfig", p.ContextName)
	}
	return setContext(env, kubeContext.Cluster, kubeContext.AuthInfo), nil
}

func setContext(env *Environment, cluster, user string) [][]string {
	return [][]string{{
		"kubectl", "config", "set-context", KubeContextName(env.Name),
		"--cluster", cluster,
		"--user", user,
		"--namespace", env.KubeNamespace,
	}}
}

func newCluster(obj schema.Object, file, kubeConfig string) (*Cluster, error) {
	name, _ := obj.String("name")
	if name == "" {
		return nil, validationErrorf(file, "cluster without a name")
	}
	cluster := &Cluster{Name: name}
	for _, p := range obj.Structs("parameters") {
		paramName, _ := p.String("name")
		value, _ := p.String("value")
		cluster.Parameters = append(cluster.Parameters, ClusterParameter{Name: paramName, Value: value})
	}

	providerObj, ok := obj.Struct("provider")
	if !ok {
		return nil, validationErrorf(file, "cluster %q: missing provider", name)
	}
	var kinds []string
	for _, kind := range []string{"gke", "aks", "minikube", "dockerForDesktop", "existingContext", "gitlab"} {
		if providerObj.Has(kind) {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) != 1 {
		return nil, validationErrorf(file, "cluster %q: exactly one provider must be set, found %d (%s)",
			name, len(kinds), strings.Join(kinds, ", "))
	}

	sub, _ := providerObj.Struct(kinds[0])
	switch kinds[0] {
	case "gke":
		gke := &GKEProvider{
			Project:     sub.StringOr("project", ""),
			ClusterName: sub.StringOr("clusterName", ""),
			Zone:        sub.StringOr("zone", ""),
			Region:      sub.StringOr("region", ""),
		}
		if (gke.Zone == "") == (gke.Region == "") {
			return nil, validationErrorf(file, "cluster %q: gke provider needs exactly one of zone or region", name)
		}
		if gke.Project == "" || gke.ClusterName == "" {
			return nil, validationErrorf(file, "cluster %q: gke provider needs project and clusterName", name)
		}
		cluster.Provider = gke
	case "aks":
		cluster.Provider = &AKSProvider{
			ResourceGroup: sub.StringOr("resourceGroup", ""),
			ClusterName:   sub.StringOr("clusterName", ""),
		}
	case "minikube":
		cluster.Provider = &MinikubeProvider{}
	case "dockerForDesktop":
		cluster.Provider = &DockerForDesktopProvider{}
	case "existingContext":
		contextName, _ := sub.String("contextName")
		if contextName == "" {
			return nil, validationErrorf(file, "cluster %q: existingContext provider needs contextName", name)
		}
		cluster.Provider = &ExistingContextProvider{ContextName: contextName, KubeConfig: kubeConfig}
	case "gitlab":
		cluster.Provider = &GitlabProvider{}
	}
	return cluster, nil
}
