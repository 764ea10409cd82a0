// File: internal/openshift/urls.go
// Brief: Deterministic construction of namespaced resource and watch URLs.

package openshift

import (
	"fmt"
	"net/url"
	"strings"
)

// API roots and versions the engine talks to. The core Kubernetes group lives
// under "api", everything aggregated (OpenShift, Tekton) under "apis".
const (
	CoreAPIRoot       = "api"
	GroupAPIRoot      = "apis"
	CoreAPIVersion    = "v1"
	TektonAPIVersion  = "tekton.dev/v1beta1"
	OAuthTokenRequest = "?response_type=token&client_id=openshift-challenging-client"
)

// URLBuilder assembles absolute resource URLs for one cluster and namespace.
// It performs no I/O and holds no mutable state.
type URLBuilder struct {
	base      *url.URL
	namespace string
}

// NewURLBuilder parses the cluster base URL once. The base must be absolute.
func NewURLBuilder(baseURL, namespace string) (*URLBuilder, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse cluster URL %q: %w", baseURL, err)
	}
	if !u.IsAbs() {
		return nil, &ConfigError{Reason: fmt.Sprintf("cluster URL %q is not absolute", baseURL)}
	}
	return &URLBuilder{base: u, namespace: namespace}, nil
}

// Namespace returns the namespace all namespaced URLs are built for.
func (b *URLBuilder) Namespace() string { return b.namespace }

// Resource builds {base}/{root}/{version}/namespaces/{ns}/{path}[?query].
func (b *URLBuilder) Resource(root, version, resourcePath string, query url.Values) string {
	return b.join(query, root, version, "namespaces", b.namespace, resourcePath)
}

// Unnamespaced builds {base}/{root}/{version}/{path}[?query]. Used for paths
// that already embed a namespace or are cluster-scoped.
func (b *URLBuilder) Unnamespaced(root, version, resourcePath string, query url.Values) string {
	return b.join(query, root, version, resourcePath)
}

// Watch builds the long-poll endpoint for one named resource: the "watch"
// segment goes before the namespace.
func (b *URLBuilder) Watch(root, version, kind, name string, query url.Values) string {
	return b.join(query, root, version, "watch", "namespaces", b.namespace, kind, name)
}

func (b *URLBuilder) join(query url.Values, segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	u := *b.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(parts, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}
