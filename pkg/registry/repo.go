package registry

import "strings"

// ParseRepo splits a repository into registry host and path. The first
// segment is a host when it contains a dot; otherwise the host is Docker Hub.
// The path is returned as written.
func ParseRepo(repo string) (host, path string) {
	segments := strings.Split(repo, "/")
	if len(segments) > 1 && strings.Contains(segments[0], ".") {
		return segments[0], strings.Join(segments[1:], "/")
	}
	return DockerHub, repo
}

// NormalizeRepo returns repo in host/path form so that equivalent spellings,
// such as "nginx", "docker.io/nginx" and "docker.io/library/nginx", compare
// equal.
func NormalizeRepo(repo string) string {
	host, path := ParseRepo(repo)
	if host == DockerHub {
		path = hubPath(path)
	}
	return host + "/" + path
}

// hubPath prefixes official Docker Hub images with "library/".
func hubPath(path string) string {
	if !strings.Contains(path, "/") {
		return "library/" + path
	}
	return path
}

// ImageRef is an image reference split into repository and tag.
type ImageRef struct {
	Repo string
	Tag  string
}

// ParseImageRef parses "repo:tag". A colon inside the host part, as in
// "localhost.localdomain:5000/app", is not taken as a tag separator.
func ParseImageRef(ref string) ImageRef {
	lastSlash := strings.LastIndex(ref, "/")
	colon := strings.LastIndex(ref, ":")
	if colon > lastSlash {
		return ImageRef{Repo: ref[:colon], Tag: ref[colon+1:]}
	}
	return ImageRef{Repo: ref}
}

func (r ImageRef) String() string {
	if r.Tag == "" {
		return r.Repo
	}
	return r.Repo + ":" + r.Tag
}
