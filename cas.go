// Package cas implements the client side of the CAS (Central
// Authentication Service) single sign-on protocol as an authentication
// strategy: an incoming request either gets redirected to the central
// login server or carries a service ticket that is validated against it.
// The CAS 1.0 plain text, CAS 3.0 XML and SAML 1.1 validation variants
// are supported.
package cas

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Protocol versions accepted by Options.Version.
const (
	CAS10 = "1.0"
	CAS30 = "3.0"
)

// VerifyFunc turns a validated principal into an application user.
// Returning a nil user rejects the login without treating it as an
// error; info is passed through to the outcome either way.
type VerifyFunc func(principal *Principal) (user any, info map[string]any, err error)

// VerifyWithRequestFunc is a VerifyFunc that also receives the original
// request, for verify logic that needs headers or context from it.
type VerifyWithRequestFunc func(r *http.Request, principal *Principal) (user any, info map[string]any, err error)

// verifyInvoker is the single internal shape both verify signatures are
// adapted to at construction time.
type verifyInvoker func(r *http.Request, principal *Principal) (any, map[string]any, error)

// Options configures a Strategy. Version and SSOBaseURL are required.
type Options struct {
	// Version is the CAS protocol version, CAS10 or CAS30.
	Version string `yaml:"version"`
	// SSOBaseURL is the base URL of the CAS server, e.g.
	// https://cas.example.com/cas.
	SSOBaseURL string `yaml:"ssoBaseURL"`
	// ServerBaseURL is the base URL of the protected application.
	// Per-request service paths are resolved against it; when empty the
	// scheme and host of the incoming request are used instead.
	ServerBaseURL string `yaml:"serverBaseURL"`
	// ValidateURL overrides the version-default validation path
	// (/validate for CAS 1.0, /p3/serviceValidate for CAS 3.0).
	ValidateURL string `yaml:"validateURL"`
	// ServiceURL, when set, is used instead of the incoming request's
	// own path and query when building the canonical service URL.
	ServiceURL string `yaml:"serviceURL"`
	// UseSAML switches CAS 3.0 ticket validation to the SAML 1.1
	// variant (SOAP POST to /samlValidate).
	UseSAML bool `yaml:"useSAML"`

	// HTTPClient issues the validation calls. Defaults to a client with
	// a 30 second timeout; its timeout also bounds each validation.
	HTTPClient *http.Client `yaml:"-"`
	// Logger receives debug logging around ticket validation.
	// Defaults to slog.Default().
	Logger *slog.Logger `yaml:"-"`
}

// Strategy authenticates requests against a CAS server. It is immutable
// after construction and safe for concurrent use; every request handled
// by Authenticate is an independent attempt.
type Strategy struct {
	version    string
	ssoBase    string
	serverBase *url.URL
	serviceURL string
	validator  ticketValidator
	verify     verifyInvoker
	logger     *slog.Logger
}

// New creates a Strategy whose verify function receives the parsed
// principal only.
func New(opts Options, verify VerifyFunc) (*Strategy, error) {
	if verify == nil {
		return nil, errors.New("cas: verify function is required")
	}
	return newStrategy(opts, func(_ *http.Request, p *Principal) (any, map[string]any, error) {
		return verify(p)
	})
}

// NewWithRequest creates a Strategy whose verify function also receives
// the original request.
func NewWithRequest(opts Options, verify VerifyWithRequestFunc) (*Strategy, error) {
	if verify == nil {
		return nil, errors.New("cas: verify function is required")
	}
	return newStrategy(opts, verifyInvoker(verify))
}

func newStrategy(opts Options, verify verifyInvoker) (*Strategy, error) {
	if opts.Version != CAS10 && opts.Version != CAS30 {
		return nil, fmt.Errorf("cas: unsupported version %q", opts.Version)
	}
	if opts.SSOBaseURL == "" {
		return nil, errors.New("cas: ssoBaseURL is required")
	}
	if _, err := url.Parse(opts.SSOBaseURL); err != nil {
		return nil, fmt.Errorf("cas: invalid ssoBaseURL: %w", err)
	}

	var serverBase *url.URL
	if opts.ServerBaseURL != "" {
		u, err := url.Parse(opts.ServerBaseURL)
		if err != nil {
			return nil, fmt.Errorf("cas: invalid serverBaseURL: %w", err)
		}
		serverBase = u
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ssoBase := strings.TrimSuffix(opts.SSOBaseURL, "/")
	return &Strategy{
		version:    opts.Version,
		ssoBase:    ssoBase,
		serverBase: serverBase,
		serviceURL: opts.ServiceURL,
		validator:  newValidator(opts.Version, opts.UseSAML, ssoBase, opts.ValidateURL, client, logger),
		verify:     verify,
		logger:     logger,
	}, nil
}

// newValidator resolves the wire-protocol variant once, at construction.
// The SAML variant only exists for CAS 3.0.
func newValidator(version string, useSAML bool, ssoBase, validatePath string, client *http.Client, logger *slog.Logger) ticketValidator {
	if version == CAS30 && useSAML {
		return &samlValidator{ssoBase: ssoBase, client: client, logger: logger}
	}
	if validatePath == "" {
		if version == CAS10 {
			validatePath = "/validate"
		} else {
			validatePath = "/p3/serviceValidate"
		}
	}
	v := &queryValidator{endpoint: ssoBase + validatePath, client: client, logger: logger}
	if version == CAS10 {
		v.parse = parseCAS1
	} else {
		v.parse = parseCAS3
	}
	return v
}

// Version returns the configured protocol version.
func (s *Strategy) Version() string {
	return s.version
}

// Service returns the canonical service URL for r: the configured
// service URL override or the request's own path and query, resolved
// against the server base URL, with the ticket parameter removed. The
// result is stable across however many tickets were used to reach the
// resource.
func (s *Strategy) Service(r *http.Request) (string, error) {
	target := s.serviceURL
	if target == "" {
		target = r.URL.RequestURI()
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("cas: invalid service URL: %w", err)
	}

	resolved := ref
	if s.serverBase != nil {
		resolved = s.serverBase.ResolveReference(ref)
	} else if !ref.IsAbs() && r.Host != "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base := &url.URL{Scheme: scheme, Host: r.Host}
		resolved = base.ResolveReference(ref)
	}

	q := resolved.Query()
	q.Del("ticket")
	resolved.RawQuery = q.Encode()
	return resolved.String(), nil
}

// LoginURL returns the SSO login URL for the given canonical service
// URL. Extra login parameters are forwarded only when non-empty.
func (s *Strategy) LoginURL(service string, params map[string]string) string {
	q := url.Values{}
	q.Set("service", service)
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	return s.ssoBase + "/login?" + q.Encode()
}

// LogoutURL returns the SSO logout URL.
func (s *Strategy) LogoutURL() string {
	return s.ssoBase + "/logout"
}

// LogoutURLWithService returns the SSO logout URL with a post-logout
// redirect back to the given URL.
func (s *Strategy) LogoutURLWithService(redirectURL string) string {
	return fmt.Sprintf("%s/logout?service=%s", s.ssoBase, url.QueryEscape(redirectURL))
}

// logoutRelayURL is the single-logout redirect produced when a request
// carries a RelayState parameter.
func (s *Strategy) logoutRelayURL(relayState string) string {
	return fmt.Sprintf("%s/logout?_eventId=next&RelayState=%s", s.ssoBase, url.QueryEscape(relayState))
}

// GetTicketFromRequest extracts the CAS ticket from an HTTP request.
// It returns the empty string when no ticket is present.
func GetTicketFromRequest(r *http.Request) string {
	return r.URL.Query().Get("ticket")
}
