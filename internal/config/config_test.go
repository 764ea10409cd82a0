// File: internal/config/config_test.go
// Brief: Validation coverage for cluster and auth options.

// config_test.go verifies Options validation: URL checks, tri-state auth,
// duration parsing, and path expansion.
package config

import (
	"strings"
	"testing"
	"time"
)

func validOptions() *Options {
	o := NewOptions()
	o.ClusterURL = "https://api.cluster:6443"
	return o
}

func TestValidateRequiresClusterURL(t *testing.T) {
	o := NewOptions()
	if err := o.Validate(); err == nil || !strings.Contains(err.Error(), "--cluster-url") {
		t.Fatalf("expected cluster-url error, got %v", err)
	}
}

func TestValidateRejectsRelativeClusterURL(t *testing.T) {
	o := NewOptions()
	o.ClusterURL = "not a url"
	if err := o.Validate(); err == nil {
		t.Fatalf("expected error for malformed cluster URL")
	}
}

func TestValidateDerivesOAuthURL(t *testing.T) {
	o := validOptions()
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	want := "https://api.cluster:6443/oauth/authorize"
	if o.OAuthURL != want {
		t.Fatalf("expected derived OAuth URL %q, got %q", want, o.OAuthURL)
	}
}

func TestValidateKeepsExplicitOAuthURL(t *testing.T) {
	o := validOptions()
	o.OAuthURL = "https://sso.cluster/oauth/authorize"
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if o.OAuthURL != "https://sso.cluster/oauth/authorize" {
		t.Fatalf("explicit OAuth URL was overridden: %q", o.OAuthURL)
	}
}

func TestValidateParsesUseAuthTriState(t *testing.T) {
	cases := []struct {
		raw  string
		want *bool
	}{
		{"auto", nil},
		{"", nil},
		{"true", boolPtr(true)},
		{"yes", boolPtr(true)},
		{"false", boolPtr(false)},
		{"0", boolPtr(false)},
	}
	for _, tc := range cases {
		t.Run("use-auth="+tc.raw, func(t *testing.T) {
			o := validOptions()
			o.UseAuthRaw = tc.raw
			if err := o.Validate(); err != nil {
				t.Fatalf("Validate returned error: %v", err)
			}
			switch {
			case tc.want == nil && o.UseAuth != nil:
				t.Fatalf("expected auto (nil), got %v", *o.UseAuth)
			case tc.want != nil && (o.UseAuth == nil || *o.UseAuth != *tc.want):
				t.Fatalf("expected %v, got %v", *tc.want, o.UseAuth)
			}
		})
	}

	o := validOptions()
	o.UseAuthRaw = "maybe"
	if err := o.Validate(); err == nil {
		t.Fatalf("expected error for invalid use-auth value")
	}
}

func boolPtr(v bool) *bool { return &v }

func TestValidateRequiresCertKeyPair(t *testing.T) {
	o := validOptions()
	o.ClientCert = "/tmp/cert.pem"
	if err := o.Validate(); err == nil || !strings.Contains(err.Error(), "--client-key") {
		t.Fatalf("expected cert/key pairing error, got %v", err)
	}
}

func TestValidateParsesDurations(t *testing.T) {
	o := validOptions()
	o.WatchDelayRaw = "250ms"
	o.IdleThresholdRaw = "90s"
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if o.WatchDelay != 250*time.Millisecond {
		t.Fatalf("unexpected watch delay %s", o.WatchDelay)
	}
	if o.IdleThreshold != 90*time.Second {
		t.Fatalf("unexpected idle threshold %s", o.IdleThreshold)
	}
}

func TestValidateRejectsTinyIdleThreshold(t *testing.T) {
	o := validOptions()
	o.IdleThresholdRaw = "500ms"
	if err := o.Validate(); err == nil {
		t.Fatalf("expected error for sub-second idle threshold")
	}
}

func TestClientConfigCarriesCredentials(t *testing.T) {
	o := validOptions()
	o.Token = "secret"
	o.UseAuthRaw = "true"
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	cfg := o.ClientConfig()
	if cfg.Auth.Token != "secret" {
		t.Fatalf("token not carried into client config: %+v", cfg.Auth)
	}
	if cfg.Auth.UseAuth == nil || !*cfg.Auth.UseAuth {
		t.Fatalf("use-auth not carried into client config: %+v", cfg.Auth)
	}
	if cfg.Namespace != "default" {
		t.Fatalf("unexpected namespace %q", cfg.Namespace)
	}
}
