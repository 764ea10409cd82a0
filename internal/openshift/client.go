// File: internal/openshift/client.go
// Brief: HTTP client for the cluster API: auth headers, content types, error mapping.

// Package openshift is the cluster-facing layer of buildpipe: credential
// resolution, URL construction, the resilient watch engine, and the error
// taxonomy everything above it matches on. The HTTP transport itself is a
// capability (Doer) so tests and embedders can substitute their own.
package openshift

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
)

const (
	contentTypeJSON       = "application/json"
	contentTypeMergePatch = "application/merge-patch+json"

	// Read cap for error response bodies carried into error values.
	maxErrorBody = 16 * 1024
)

// Doer sends one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// ClientConfig wires a Client to one cluster and namespace.
type ClientConfig struct {
	// BaseURL is the cluster root, e.g. https://api.cluster:6443/.
	BaseURL string
	// OAuthURL is the token-exchange endpoint, without trailing slash.
	OAuthURL string
	Namespace string

	Auth AuthConfig

	// InsecureSkipTLSVerify disables server certificate verification.
	InsecureSkipTLSVerify bool
}

// Client issues authenticated requests against the cluster API. Each logical
// watch or log stream opened through it owns its own connection.
type Client struct {
	URL  *URLBuilder
	auth *AuthContext

	doer Doer
	log  logr.Logger
}

// ClientOption tweaks client construction.
type ClientOption func(*clientOptions)

type clientOptions struct {
	doer Doer
}

// WithDoer substitutes the HTTP transport capability, e.g. for tests.
// The Doer must not follow redirects: the token exchange reads them.
func WithDoer(d Doer) ClientOption {
	return func(o *clientOptions) { o.doer = d }
}

// NewClient builds the cluster client. Default transport: no overall request
// timeout (watches and log follows are long-lived), TLS configured from the
// auth context's client certs and discovered CA bundle.
func NewClient(cfg ClientConfig, log logr.Logger, opts ...ClientOption) (*Client, error) {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	urls, err := NewURLBuilder(cfg.BaseURL, cfg.Namespace)
	if err != nil {
		return nil, err
	}

	// The auth context needs a doer before the TLS material it may discover
	// (service-account CA) is known, so construction is two-phase: resolve
	// credentials first, then build the transport.
	auth, err := NewAuthContext(cfg.Auth, cfg.OAuthURL, nil, log)
	if err != nil {
		return nil, err
	}

	doer := o.doer
	if doer == nil {
		transport, err := newTransport(auth, cfg.InsecureSkipTLSVerify)
		if err != nil {
			return nil, err
		}
		doer = &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	auth.doer = doer

	return &Client{URL: urls, auth: auth, doer: doer, log: log}, nil
}

// Auth exposes the credential context, chiefly so callers can report whether
// requests are authenticated.
func (c *Client) Auth() *AuthContext { return c.auth }

func newTransport(auth *AuthContext, insecure bool) (http.RoundTripper, error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: insecure}

	if cert, key := auth.ClientCertFiles(); cert != "" {
		pair, err := tls.LoadX509KeyPair(cert, key)
		if err != nil {
			return nil, &AuthError{Reason: "load client certificate", Err: err}
		}
		tlsCfg.Certificates = []tls.Certificate{pair}
	}
	if ca := auth.CAFile(); ca != "" && !insecure {
		pem, err := os.ReadFile(ca)
		if err != nil {
			return nil, &AuthError{Reason: "read CA bundle " + ca, Err: err}
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, &AuthError{Reason: "no certificates parsed from " + ca}
		}
		tlsCfg.RootCAs = pool
	}

	return &http.Transport{
		TLSClientConfig:       tlsCfg,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 5 * time.Minute,
	}, nil
}

// do issues one request with the bearer header attached when auth is on.
func (c *Client) do(ctx context.Context, method, rawURL, contentType string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if c.auth.Enabled() {
		token, err := c.auth.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.doer.Do(req)
}

// checked issues a request and maps non-2xx answers into the error taxonomy,
// returning the response body.
func (c *Client) checked(ctx context.Context, method, rawURL, contentType string, body []byte) ([]byte, error) {
	resp, err := c.do(ctx, method, rawURL, contentType, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := statusToError(resp.StatusCode, rawURL, string(detail))
		c.log.V(1).Info("request failed", "method", method, "url", rawURL, "status", resp.StatusCode)
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// GetBody fetches a resource and returns the raw payload.
func (c *Client) GetBody(ctx context.Context, rawURL string) ([]byte, error) {
	return c.checked(ctx, http.MethodGet, rawURL, "", nil)
}

// GetJSON fetches a resource and decodes it into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.GetBody(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ProtocolError{Op: "GET " + rawURL, Detail: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

// GetStream opens a streamed GET; the caller owns the returned body and
// consumes it line by line. Non-2xx responses are mapped into the taxonomy.
func (c *Client) GetStream(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	// Streams are never reused; tell the server so.
	req.Header.Set("Connection", "close")
	if c.auth.Enabled() {
		token, err := c.auth.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, statusToError(resp.StatusCode, rawURL, string(detail))
	}
	return resp.Body, nil
}

// PostJSON creates a resource from the given payload and decodes the
// response into out when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload []byte, out any) error {
	body, err := c.checked(ctx, http.MethodPost, rawURL, contentTypeJSON, payload)
	if err != nil {
		return err
	}
	return decodeInto(rawURL, body, out)
}

// PatchJSON applies a merge patch and decodes the response into out when out
// is non-nil.
func (c *Client) PatchJSON(ctx context.Context, rawURL string, patch any, out any) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	body, err := c.checked(ctx, http.MethodPatch, rawURL, contentTypeMergePatch, payload)
	if err != nil {
		return err
	}
	return decodeInto(rawURL, body, out)
}

// Delete removes a resource and decodes the deletion status into out when
// out is non-nil.
func (c *Client) Delete(ctx context.Context, rawURL string, out any) error {
	body, err := c.checked(ctx, http.MethodDelete, rawURL, contentTypeJSON, nil)
	if err != nil {
		return err
	}
	return decodeInto(rawURL, body, out)
}

func decodeInto(rawURL string, body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ProtocolError{Op: rawURL, Detail: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

// ServiceAccountTokens collects the token secrets attached to a service
// account, keyed by secret name, values base64-decoded. Used for ambient
// credential discovery ("~" means the authenticated user's own account).
func (c *Client) ServiceAccountTokens(ctx context.Context, username string) (map[string][]byte, error) {
	if username == "" {
		username = "~"
	}
	var account struct {
		Secrets []struct {
			Name string `json:"name"`
		} `json:"secrets"`
	}
	saURL := c.URL.Resource(CoreAPIRoot, CoreAPIVersion, "serviceaccounts/"+username, nil)
	if err := c.GetJSON(ctx, saURL, &account); err != nil {
		return nil, err
	}
	if len(account.Secrets) == 0 {
		c.log.V(1).Info("no secrets found for service account", "serviceaccount", username)
		return map[string][]byte{}, nil
	}

	tokens := make(map[string][]byte)
	for _, secret := range account.Secrets {
		if secret.Name == "" {
			c.log.V(1).Info("malformed secret reference without a name", "serviceaccount", username)
			continue
		}
		if !bytes.Contains([]byte(secret.Name), []byte("token")) {
			c.log.V(1).Info("secret is not a token", "secret", secret.Name)
			continue
		}
		var payload struct {
			Data map[string]string `json:"data"`
		}
		secretURL := c.URL.Resource(CoreAPIRoot, CoreAPIVersion, "secrets/"+secret.Name, nil)
		if err := c.GetJSON(ctx, secretURL, &payload); err != nil {
			return nil, err
		}
		encoded, ok := payload.Data["token"]
		if !ok {
			c.log.V(1).Info("malformed secret data without a token key", "secret", secret.Name)
			continue
		}
		token, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, &ProtocolError{Op: "GET " + secretURL, Detail: "token is not valid base64"}
		}
		tokens[secret.Name] = token
	}
	return tokens, nil
}
