package cas

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html/charset"
)

// ErrBadResponse marks a validation response body that could not be
// parsed. It is distinct from an explicit rejection by the server, which
// surfaces as a Failure, not an error.
var ErrBadResponse = errors.New("bad server response")

// ticketValidator issues the outbound validation call for one
// wire-protocol variant and parses the response. The variant is chosen
// once when the strategy is constructed, never per request.
//
// Exactly one of the three results is non-zero: the principal on
// success, the failure on an explicit server rejection, the error on a
// transport failure or malformed response.
type ticketValidator interface {
	Validate(ctx context.Context, ticket, service string) (*Principal, *Failure, error)
}

// queryValidator validates tickets over the GET endpoints shared by the
// CAS 1.0 and CAS 3.0 protocols; only the response parser differs.
type queryValidator struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	parse    func(body []byte) (*Principal, *Failure, error)
}

func (v *queryValidator) Validate(ctx context.Context, ticket, service string) (*Principal, *Failure, error) {
	u, err := url.Parse(v.endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("cas: invalid validate URL: %w", err)
	}
	q := u.Query()
	q.Set("ticket", ticket)
	q.Set("service", service)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("cas: build validation request: %w", err)
	}

	body, err := fetchBody(v.client, req)
	if err != nil {
		return nil, nil, err
	}
	v.logger.Debug("cas: validation response", "url", v.endpoint, "body", string(body))
	return v.parse(body)
}

// fetchBody performs one validation call and buffers the whole response
// body before returning, so parsing never races the transport.
func fetchBody(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cas: validation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cas: read validation response: %w", err)
	}
	return body, nil
}

// parseCAS1 interprets the CAS 1.0 plain text response: "no" on the
// first line rejects, "yes" followed by the user identifier
// authenticates. Any other shape is a malformed response, not a
// rejection.
func parseCAS1(body []byte) (*Principal, *Failure, error) {
	lines := strings.Split(string(body), "\n")
	switch {
	case lines[0] == "no":
		return nil, &Failure{Message: "Authentication failed"}, nil
	case lines[0] == "yes" && len(lines) >= 2 && strings.TrimSpace(lines[1]) != "":
		return &Principal{User: strings.TrimSpace(lines[1])}, nil, nil
	default:
		return nil, nil, ErrBadResponse
	}
}

// serviceResponse mirrors the CAS 3.0 serviceValidate XML schema.
type serviceResponse struct {
	XMLName xml.Name               `xml:"serviceResponse"`
	Success *authenticationSuccess `xml:"authenticationSuccess"`
	Failure *authenticationFailure `xml:"authenticationFailure"`
}

type authenticationSuccess struct {
	User       string              `xml:"user"`
	Attributes *responseAttributes `xml:"attributes"`
}

// responseAttributes captures the server-defined attribute elements
// without interpreting them.
type responseAttributes struct {
	Attrs []responseAttribute `xml:",any"`
}

type responseAttribute struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type authenticationFailure struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

// parseCAS3 interprets the CAS 3.0 serviceValidate XML response.
// Attribute names are lower-cased; their values are passed through as
// returned by the server, collecting repeats into a slice.
func parseCAS3(body []byte) (*Principal, *Failure, error) {
	var resp serviceResponse
	if err := decodeXML(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	if resp.Failure != nil {
		return nil, &Failure{
			Code:    resp.Failure.Code,
			Message: strings.TrimSpace(resp.Failure.Message),
		}, nil
	}
	if resp.Success == nil {
		return nil, &Failure{Message: "Authentication failed"}, nil
	}

	p := &Principal{User: resp.Success.User}
	if resp.Success.Attributes != nil && len(resp.Success.Attributes.Attrs) > 0 {
		p.Attributes = make(map[string]any, len(resp.Success.Attributes.Attrs))
		for _, attr := range resp.Success.Attributes.Attrs {
			name := strings.ToLower(attr.XMLName.Local)
			switch existing := p.Attributes[name].(type) {
			case nil:
				p.Attributes[name] = attr.Value
			case string:
				p.Attributes[name] = []string{existing, attr.Value}
			case []string:
				p.Attributes[name] = append(existing, attr.Value)
			}
		}
	}
	return p, nil, nil
}

// decodeXML decodes a validation response, accepting the non-UTF-8
// charsets some CAS deployments still emit.
func decodeXML(body []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	return dec.Decode(v)
}
