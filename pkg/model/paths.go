package model

import "path/filepath"

// ResolvePathFromFile resolves path relative to the directory containing file.
func ResolvePathFromFile(path, file string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(file), path)
}

// KubeContextName is the kubectl context kcd manages for an environment.
func KubeContextName(envName string) string {
	return "env:" + envName
}
