// File: internal/config/config.go
// Brief: CLI and config-file options resolved into cluster client settings.

// Package config defines the flag plumbing and runtime options shared by
// buildpipe's commands, translating Cobra/Viper flag values into a strongly
// typed struct the cluster client and pipeline controllers consume.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/example/buildpipe/internal/openshift"
)

// Options holds all CLI configuration used by buildpipe.
type Options struct {
	ClusterURL string
	OAuthURL   string
	Namespace  string

	Token      string
	TokenFile  string
	Username   string
	Password   string
	ClientCert string
	ClientKey  string
	UseAuthRaw string
	UseAuth    *bool

	InsecureSkipTLSVerify bool

	WatchAttempts    int
	WatchDelayRaw    string
	WatchDelay       time.Duration
	IdleThresholdRaw string
	IdleThreshold    time.Duration

	LogLevel string
}

const (
	defaultNamespace     = "default"
	defaultWatchAttempts = 20
	defaultWatchDelay    = "5s"
	defaultIdleThreshold = "60s"
)

// NewOptions returns Options with defaults applied.
func NewOptions() *Options {
	return &Options{
		Namespace:        defaultNamespace,
		UseAuthRaw:       "auto",
		WatchAttempts:    defaultWatchAttempts,
		WatchDelayRaw:    defaultWatchDelay,
		IdleThresholdRaw: defaultIdleThreshold,
		LogLevel:         "info",
	}
}

// AddFlags binds configuration flags to the provided Cobra command.
func (o *Options) AddFlags(cmd *cobra.Command) {
	o.BindFlags(cmd.PersistentFlags())
}

// BindFlags attaches cluster flags to an arbitrary FlagSet and returns the
// flag names for further customization.
func (o *Options) BindFlags(fs *pflag.FlagSet) []string {
	var names []string
	fs.StringVar(&o.ClusterURL, "cluster-url", "", "Base URL of the cluster API server (e.g. https://api.example.com:6443)")
	names = append(names, "cluster-url")
	fs.StringVar(&o.OAuthURL, "oauth-url", "", "OAuth authorize endpoint; defaults to <cluster-url>/oauth/authorize")
	names = append(names, "oauth-url")
	fs.StringVarP(&o.Namespace, "namespace", "n", defaultNamespace, "Namespace the pipeline runs live in")
	names = append(names, "namespace")
	fs.StringVar(&o.Token, "token", "", "Bearer token used directly, skipping the OAuth exchange")
	names = append(names, "token")
	fs.StringVar(&o.TokenFile, "token-file", "", "Path to a file holding the bearer token")
	names = append(names, "token-file")
	fs.StringVar(&o.Username, "username", "", "Username for the OAuth token exchange")
	names = append(names, "username")
	fs.StringVar(&o.Password, "password", "", "Password for the OAuth token exchange")
	names = append(names, "password")
	fs.StringVar(&o.ClientCert, "client-cert", "", "Path to a TLS client certificate")
	names = append(names, "client-cert")
	fs.StringVar(&o.ClientKey, "client-key", "", "Path to the TLS client key; required with --client-cert")
	names = append(names, "client-key")
	fs.StringVar(&o.UseAuthRaw, "use-auth", "auto", "Authenticate API requests: auto, true, or false")
	names = append(names, "use-auth")
	fs.BoolVar(&o.InsecureSkipTLSVerify, "insecure-skip-tls-verify", false, "Skip TLS certificate verification")
	names = append(names, "insecure-skip-tls-verify")
	fs.IntVar(&o.WatchAttempts, "watch-attempts", defaultWatchAttempts, "Number of watch connections before giving up on a quiet resource")
	names = append(names, "watch-attempts")
	fs.StringVar(&o.WatchDelayRaw, "watch-delay", defaultWatchDelay, "Pause between watch reconnects, as a Go duration")
	names = append(names, "watch-delay")
	fs.StringVar(&o.IdleThresholdRaw, "idle-threshold", defaultIdleThreshold, "Pod log idle time that triggers a reconnect instead of ending the stream")
	names = append(names, "idle-threshold")
	fs.StringVar(&o.LogLevel, "log-level", "info", "Log verbosity: debug, info, warn, or error")
	names = append(names, "log-level")
	return names
}

// Validate ensures provided options are coherent, expands home-relative
// paths, and parses duration and tri-state inputs.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.ClusterURL) == "" {
		return fmt.Errorf("--cluster-url is required")
	}
	parsed, err := url.Parse(o.ClusterURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid --cluster-url %q", o.ClusterURL)
	}
	if strings.TrimSpace(o.OAuthURL) == "" {
		o.OAuthURL = strings.TrimRight(o.ClusterURL, "/") + "/oauth/authorize"
	}
	if strings.TrimSpace(o.Namespace) == "" {
		return fmt.Errorf("--namespace cannot be empty")
	}

	for name, field := range map[string]*string{
		"token-file":  &o.TokenFile,
		"client-cert": &o.ClientCert,
		"client-key":  &o.ClientKey,
	} {
		if *field == "" {
			continue
		}
		expanded, err := homedir.Expand(*field)
		if err != nil {
			return fmt.Errorf("expand --%s path %q: %w", name, *field, err)
		}
		*field = expanded
	}
	if (o.ClientCert == "") != (o.ClientKey == "") {
		return fmt.Errorf("--client-cert and --client-key must be given together")
	}

	switch strings.ToLower(strings.TrimSpace(o.UseAuthRaw)) {
	case "", "auto":
		o.UseAuth = nil
	case "true", "1", "yes":
		v := true
		o.UseAuth = &v
	case "false", "0", "no":
		v := false
		o.UseAuth = &v
	default:
		return fmt.Errorf("invalid --use-auth value %q (allowed: auto, true, false)", o.UseAuthRaw)
	}

	if o.WatchAttempts < 1 {
		return fmt.Errorf("--watch-attempts must be at least 1")
	}
	if o.WatchDelay, err = time.ParseDuration(o.WatchDelayRaw); err != nil {
		return fmt.Errorf("invalid --watch-delay %q: %w", o.WatchDelayRaw, err)
	}
	if o.IdleThreshold, err = time.ParseDuration(o.IdleThresholdRaw); err != nil {
		return fmt.Errorf("invalid --idle-threshold %q: %w", o.IdleThresholdRaw, err)
	}
	if o.IdleThreshold < 2*time.Second {
		return fmt.Errorf("--idle-threshold must be at least 2s")
	}
	return nil
}

// ClientConfig translates validated options into cluster client settings.
func (o *Options) ClientConfig() openshift.ClientConfig {
	return openshift.ClientConfig{
		BaseURL:   o.ClusterURL,
		OAuthURL:  o.OAuthURL,
		Namespace: o.Namespace,
		Auth: openshift.AuthConfig{
			Token:      o.Token,
			TokenFile:  o.TokenFile,
			Username:   o.Username,
			Password:   o.Password,
			ClientCert: o.ClientCert,
			ClientKey:  o.ClientKey,
			UseAuth:    o.UseAuth,
		},
		InsecureSkipTLSVerify: o.InsecureSkipTLSVerify,
	}
}
