package model

import "os"

// HelmRepo is a chart repository to register with helm before deploying.
type HelmRepo struct {
	Name     string
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
}

// Expanded returns a copy with $VAR and ${VAR} references in the file paths
// replaced from the process environment.
func (r *HelmRepo) Expanded() HelmRepo {
	return HelmRepo{
		Name:     r.Name,
		URL:      r.URL,
		CAFile:   os.ExpandEnv(r.CAFile),
		CertFile: os.ExpandEnv(r.CertFile),
		KeyFile:  os.ExpandEnv(r.KeyFile),
	}
}
