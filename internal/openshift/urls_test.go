// urls_test.go covers resource and watch URL construction.
package openshift

import (
	"net/url"
	"testing"
)

func mustBuilder(t *testing.T, base, namespace string) *URLBuilder {
	t.Helper()
	b, err := NewURLBuilder(base, namespace)
	if err != nil {
		t.Fatalf("NewURLBuilder(%q) returned error: %v", base, err)
	}
	return b
}

func TestResourceURL(t *testing.T) {
	b := mustBuilder(t, "https://api.cluster:6443", "builds")

	got := b.Resource(GroupAPIRoot, TektonAPIVersion, "pipelineruns/demo-1", nil)
	want := "https://api.cluster:6443/apis/tekton.dev/v1beta1/namespaces/builds/pipelineruns/demo-1"
	if got != want {
		t.Fatalf("Resource URL mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestResourceURLWithQuery(t *testing.T) {
	b := mustBuilder(t, "https://api.cluster:6443", "builds")

	query := url.Values{}
	query.Set("container", "step-build")
	query.Set("follow", "true")
	got := b.Resource(CoreAPIRoot, CoreAPIVersion, "pods/demo-pod/log", query)
	want := "https://api.cluster:6443/api/v1/namespaces/builds/pods/demo-pod/log?container=step-build&follow=true"
	if got != want {
		t.Fatalf("Resource URL with query mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestWatchURLPlacesWatchBeforeNamespace(t *testing.T) {
	b := mustBuilder(t, "https://api.cluster:6443", "builds")

	got := b.Watch(GroupAPIRoot, TektonAPIVersion, "pipelineruns", "demo-1", nil)
	want := "https://api.cluster:6443/apis/tekton.dev/v1beta1/watch/namespaces/builds/pipelineruns/demo-1"
	if got != want {
		t.Fatalf("Watch URL mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestUnnamespacedURL(t *testing.T) {
	b := mustBuilder(t, "https://api.cluster:6443/", "builds")

	got := b.Unnamespaced(CoreAPIRoot, CoreAPIVersion, "nodes", nil)
	want := "https://api.cluster:6443/api/v1/nodes"
	if got != want {
		t.Fatalf("Unnamespaced URL mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestBaseURLWithPathPrefixIsPreserved(t *testing.T) {
	b := mustBuilder(t, "https://gateway.example.com/cluster/", "builds")

	got := b.Resource(CoreAPIRoot, CoreAPIVersion, "pods/p", nil)
	want := "https://gateway.example.com/cluster/api/v1/namespaces/builds/pods/p"
	if got != want {
		t.Fatalf("prefixed base URL mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestNewURLBuilderRejectsRelativeURL(t *testing.T) {
	if _, err := NewURLBuilder("/just/a/path", "builds"); err == nil {
		t.Fatalf("expected error for relative cluster URL")
	}
}
