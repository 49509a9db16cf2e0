package cas

import "net/http"

// Principal is the authenticated identity returned by a successful
// ticket validation.
type Principal struct {
	// User is the principal's identifier.
	User string `json:"user"`
	// Attributes holds any additional attributes released by the
	// server, keyed by lower-cased name. Values are strings, or
	// []string for multi-valued attributes. Nil for CAS 1.0, which
	// only carries the identifier.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Failure describes an explicit rejection by the CAS server, as opposed
// to a transport or parse error.
type Failure struct {
	// Code is the server-provided failure code (e.g. INVALID_TICKET),
	// when the protocol variant carries one.
	Code    string
	Message string
}

// OutcomeKind tags the terminal state of an authentication attempt.
type OutcomeKind int

const (
	// OutcomeRedirect means the user agent must be sent to the SSO
	// login or logout endpoint; no ticket exchange took place.
	OutcomeRedirect OutcomeKind = iota
	// OutcomeSuccess means the ticket validated and the verify
	// function produced a user.
	OutcomeSuccess
	// OutcomeFailure means the server or the verify function rejected
	// the login.
	OutcomeFailure
	// OutcomeError means validation could not be carried out: a
	// transport failure, a malformed response or a verify error.
	OutcomeError
)

// Outcome is the single terminal result of one authentication attempt.
// Exactly one field set matching Kind is populated.
type Outcome struct {
	Kind OutcomeKind
	// User is the application user returned by the verify function.
	User any
	// Principal is the identity parsed from the validation response,
	// set alongside User on success.
	Principal *Principal
	// Info carries additional detail: the verify function's info, or
	// the server's failure code and message on rejection.
	Info map[string]any
	// Redirect is the target URL when Kind is OutcomeRedirect.
	Redirect string
	// EndSession is set on the logout redirect produced by a
	// RelayState request; the host should terminate its session before
	// following it.
	EndSession bool
	// Err is the cause when Kind is OutcomeError.
	Err error
}

// AuthenticateOptions carries per-request authentication parameters.
type AuthenticateOptions struct {
	// LoginParams are extra query parameters forwarded verbatim to the
	// SSO login redirect. Parameters with empty values are dropped.
	LoginParams map[string]string
}

// Authenticate runs one authentication attempt for r and returns exactly
// one outcome. A request carrying RelayState produces a logout redirect;
// a request without a ticket produces a login redirect; a request with a
// ticket is validated against the CAS server and handed to the verify
// function. The outbound validation call uses r's context, so cancelling
// the request cancels the attempt.
func (s *Strategy) Authenticate(r *http.Request, opts *AuthenticateOptions) Outcome {
	if relay := r.URL.Query().Get("RelayState"); relay != "" {
		return Outcome{Kind: OutcomeRedirect, Redirect: s.logoutRelayURL(relay), EndSession: true}
	}

	service, err := s.Service(r)
	if err != nil {
		return Outcome{Kind: OutcomeError, Err: err}
	}

	ticket := GetTicketFromRequest(r)
	if ticket == "" {
		var params map[string]string
		if opts != nil {
			params = opts.LoginParams
		}
		return Outcome{Kind: OutcomeRedirect, Redirect: s.LoginURL(service, params)}
	}

	principal, failure, err := s.validator.Validate(r.Context(), ticket, service)
	if err != nil {
		s.logger.Debug("cas: ticket validation error", "service", service, "err", err)
		return Outcome{Kind: OutcomeError, Err: err}
	}
	if failure != nil {
		s.logger.Debug("cas: ticket rejected", "service", service, "code", failure.Code)
		return Outcome{Kind: OutcomeFailure, Info: failureInfo(failure)}
	}

	user, info, err := s.verify(r, principal)
	if err != nil {
		return Outcome{Kind: OutcomeError, Err: err}
	}
	if user == nil {
		return Outcome{Kind: OutcomeFailure, Info: info}
	}
	return Outcome{Kind: OutcomeSuccess, User: user, Principal: principal, Info: info}
}

func failureInfo(f *Failure) map[string]any {
	info := map[string]any{"message": f.Message}
	if f.Code != "" {
		info["code"] = f.Code
	}
	return info
}
