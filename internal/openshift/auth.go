// File: internal/openshift/auth.go
// Brief: Bearer credential resolution and the OAuth redirect token exchange.

package openshift

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-logr/logr"
)

// Where a pod finds its ambient service-account credential.
const (
	ServiceAccountDir    = "/var/run/secrets/kubernetes.io/serviceaccount"
	serviceAccountToken  = "token"
	serviceAccountCACert = "ca.crt"
)

// Negotiator supplies an Authorization header value for the Kerberos branch
// of the token exchange. Ticket acquisition (keytab, ccache) is a capability
// of the caller, not of this package.
type Negotiator interface {
	Authorize(ctx context.Context) (string, error)
}

// AuthConfig enumerates every credential source the engine understands.
// Resolution order: Token > Username/Password > Kerberos > ambient
// service-account token. Client cert/key layer with any of them.
type AuthConfig struct {
	Token     string
	TokenFile string

	Username string
	Password string

	Kerberos Negotiator

	ClientCert string
	ClientKey  string

	// UseAuth forces authentication on or off. Nil means "auto": on when a
	// credential was found, otherwise fall back to unauthenticated requests.
	UseAuth *bool

	// ServiceAccountDir overrides the ambient credential directory; used by
	// tests. Empty means the conventional in-cluster path.
	ServiceAccountDir string
}

// AuthContext resolves and caches a bearer token. It is stateless apart from
// the cached token and safe for concurrent use.
type AuthContext struct {
	cfg      AuthConfig
	oauthURL string
	doer     Doer
	log      logr.Logger

	enabled bool
	caFile  string

	mu    sync.Mutex
	token string
}

// NewAuthContext validates the configuration and resolves file-based
// credentials. It performs no network I/O; the token exchange happens lazily
// on first use.
//
// When no credential is found and UseAuth is unset, requests are sent
// unauthenticated. This mirrors historical behavior for in-cluster
// anonymous-read setups and is logged loudly because of its security
// implications.
func NewAuthContext(cfg AuthConfig, oauthURL string, doer Doer, log logr.Logger) (*AuthContext, error) {
	if (cfg.ClientCert == "") != (cfg.ClientKey == "") {
		return nil, &ConfigError{Reason: "client certificate and key must both be provided"}
	}

	a := &AuthContext{cfg: cfg, oauthURL: oauthURL, doer: doer, log: log}

	if cfg.Token == "" && cfg.TokenFile != "" {
		raw, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return nil, &AuthError{Reason: "read token file " + cfg.TokenFile, Err: err}
		}
		a.cfg.Token = strings.TrimSpace(string(raw))
	}
	a.token = a.cfg.Token

	provided := a.cfg.Token != "" || cfg.Kerberos != nil || (cfg.Username != "" && cfg.Password != "")

	switch {
	case cfg.UseAuth == nil:
		a.enabled = provided || a.loadServiceAccountToken()
		if !a.enabled {
			log.Info("no credentials found, requests will be unauthenticated")
		}
	case *cfg.UseAuth:
		a.enabled = true
		if !provided {
			// Told to authenticate without explicit credentials: the ambient
			// token is the only remaining source.
			if a.loadServiceAccountToken() {
				log.V(1).Info("using ambient service account token")
			}
		}
	default:
		a.enabled = false
	}

	return a, nil
}

// Enabled reports whether requests carry an Authorization header.
func (a *AuthContext) Enabled() bool { return a.enabled }

// CAFile returns the service-account CA bundle path, if one was discovered.
func (a *AuthContext) CAFile() string { return a.caFile }

// ClientCertFiles returns the configured certificate/key pair, both empty
// when certificate auth is not in use.
func (a *AuthContext) ClientCertFiles() (cert, key string) {
	return a.cfg.ClientCert, a.cfg.ClientKey
}

// Token returns the bearer token, performing the one-time OAuth exchange if
// no token is cached yet.
func (a *AuthContext) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" {
		return a.token, nil
	}
	token, err := a.exchange(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", &AuthError{Reason: "token was not retrieved successfully, check your credentials"}
	}
	a.token = token
	return token, nil
}

func (a *AuthContext) loadServiceAccountToken() bool {
	dir := a.cfg.ServiceAccountDir
	if dir == "" {
		dir = ServiceAccountDir
	}
	raw, err := os.ReadFile(filepath.Join(dir, serviceAccountToken))
	if err != nil {
		return false
	}
	a.token = strings.TrimSpace(string(raw))
	ca := filepath.Join(dir, serviceAccountCACert)
	if _, err := os.Stat(ca); err == nil {
		a.caFile = ca
	}
	a.log.Info("using service account's auth token")
	return true
}

// exchange performs the redirect-based OAuth handshake: an unauthenticated
// request that must answer with a redirect whose fragment carries
// access_token. The Doer must not follow redirects.
func (a *AuthContext) exchange(ctx context.Context) (string, error) {
	if a.oauthURL == "" {
		return "", &AuthError{Reason: "no OAuth endpoint configured"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.oauthURL+OAuthTokenRequest, nil)
	if err != nil {
		return "", &AuthError{Reason: "build token request", Err: err}
	}

	switch {
	case a.cfg.Username != "" && a.cfg.Password != "":
		a.log.V(1).Info("using basic authentication")
		req.SetBasicAuth(a.cfg.Username, a.cfg.Password)
	case a.cfg.Kerberos != nil:
		a.log.V(1).Info("using kerberos authentication")
		header, err := a.cfg.Kerberos.Authorize(ctx)
		if err != nil {
			return "", &AuthError{Reason: "kerberos negotiation", Err: err}
		}
		req.Header.Set("Authorization", header)
	case a.enabled:
		a.log.V(1).Info("using identity authentication")
	default:
		a.log.V(1).Info("getting token without any authentication (fingers crossed)")
	}

	resp, err := a.doer.Do(req)
	if err != nil {
		return "", &AuthError{Reason: "token exchange request", Err: err}
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		return "", &AuthError{Reason: "'Location' header is missing in response, cannot retrieve token"}
	}
	redir, err := url.Parse(location)
	if err != nil {
		return "", &AuthError{Reason: "parse redirect URL", Err: err}
	}
	fragment, err := url.ParseQuery(redir.Fragment)
	if err != nil {
		return "", &AuthError{Reason: "parse redirect fragment", Err: err}
	}
	token := fragment.Get("access_token")
	if token == "" {
		return "", &AuthError{Reason: "redirect fragment carries no access_token"}
	}
	return token, nil
}
