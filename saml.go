package cas

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// samlRequest is the SOAP 1.1 envelope POSTed to /samlValidate.
type samlRequest struct {
	XMLName   xml.Name        `xml:"SOAP-ENV:Envelope"`
	SoapEnvNS string          `xml:"xmlns:SOAP-ENV,attr"`
	Header    string          `xml:"SOAP-ENV:Header"`
	Body      samlRequestBody `xml:"SOAP-ENV:Body"`
}

type samlRequestBody struct {
	Request samlpRequest `xml:"samlp:Request"`
}

type samlpRequest struct {
	XMLNS        string `xml:"xmlns:samlp,attr"`
	MajorVersion string `xml:"MajorVersion,attr"`
	MinorVersion string `xml:"MinorVersion,attr"`
	RequestID    string `xml:"RequestID,attr"`
	IssueInstant string `xml:"IssueInstant,attr"`
	Artifact     string `xml:"samlp:AssertionArtifact"`
}

// samlResponse is the envelope returned by /samlValidate. Element names
// match on their local part, so namespace prefixes do not matter.
type samlResponse struct {
	XMLName xml.Name         `xml:"Envelope"`
	Body    samlResponseBody `xml:"Body"`
}

type samlResponseBody struct {
	Response samlpResponse `xml:"Response"`
}

type samlpResponse struct {
	Status    samlStatus    `xml:"Status"`
	Assertion samlAssertion `xml:"Assertion"`
}

type samlStatus struct {
	StatusCode samlStatusCode `xml:"StatusCode"`
}

type samlStatusCode struct {
	Value string `xml:"Value,attr"`
}

type samlAssertion struct {
	AuthenticationStatement samlAuthStatement `xml:"AuthenticationStatement"`
	AttributeStatement      samlAttrStatement `xml:"AttributeStatement"`
}

type samlAuthStatement struct {
	Subject samlSubject `xml:"Subject"`
}

type samlSubject struct {
	NameIdentifier string `xml:"NameIdentifier"`
}

type samlAttrStatement struct {
	Attributes []samlAttribute `xml:"Attribute"`
}

type samlAttribute struct {
	Name   string   `xml:"AttributeName,attr"`
	Values []string `xml:"AttributeValue"`
}

// samlValidator validates tickets through the CAS SAML 1.1 variant: the
// ticket travels as an assertion artifact inside a SOAP envelope, and
// the service URL moves into the TARGET query parameter.
type samlValidator struct {
	ssoBase string
	client  *http.Client
	logger  *slog.Logger
}

func (v *samlValidator) Validate(ctx context.Context, ticket, service string) (*Principal, *Failure, error) {
	endpoint := fmt.Sprintf("%s/samlValidate?TARGET=%s", v.ssoBase, url.QueryEscape(service))

	payload, err := xml.Marshal(newSAMLRequest(ticket))
	if err != nil {
		return nil, nil, fmt.Errorf("cas: build SAML request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("cas: build validation request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://www.oasis-open.org/committees/security")

	body, err := fetchBody(v.client, req)
	if err != nil {
		return nil, nil, err
	}
	v.logger.Debug("cas: SAML validation response", "target", service, "body", string(body))
	return parseSAML(body)
}

func newSAMLRequest(ticket string) samlRequest {
	return samlRequest{
		SoapEnvNS: "http://schemas.xmlsoap.org/soap/envelope/",
		Header:    "",
		Body: samlRequestBody{
			Request: samlpRequest{
				XMLNS:        "urn:oasis:names:tc:SAML:1.0:protocol",
				MajorVersion: "1",
				MinorVersion: "1",
				RequestID:    "_" + uuid.NewString(),
				IssueInstant: time.Now().UTC().Format(time.RFC3339),
				Artifact:     ticket,
			},
		},
	}
}

// parseSAML interprets the SOAP response from /samlValidate. The status
// code value must end in "Success" and the assertion must name a
// subject; any structural gap is reported as a plain rejection so that
// the parse detail never leaks to the verify chain.
func parseSAML(body []byte) (*Principal, *Failure, error) {
	var resp samlResponse
	if err := decodeXML(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	rejected := &Failure{Message: "Authentication failed"}
	if !strings.HasSuffix(resp.Body.Response.Status.StatusCode.Value, "Success") {
		return nil, rejected, nil
	}

	user := strings.TrimSpace(resp.Body.Response.Assertion.AuthenticationStatement.Subject.NameIdentifier)
	if user == "" {
		return nil, rejected, nil
	}

	p := &Principal{User: user, Attributes: make(map[string]any)}
	for _, attr := range resp.Body.Response.Assertion.AttributeStatement.Attributes {
		name := strings.ToLower(attr.Name)
		switch len(attr.Values) {
		case 0:
			// attribute without a value, skip
		case 1:
			p.Attributes[name] = attr.Values[0]
		default:
			p.Attributes[name] = attr.Values
		}
	}
	return p, nil, nil
}
