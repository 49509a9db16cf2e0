package cas

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func acceptAll(p *Principal) (any, map[string]any, error) {
	return p, nil, nil
}

func testOptions() Options {
	return Options{
		Version:       CAS30,
		SSOBaseURL:    "https://cas.example.com/cas",
		ServerBaseURL: "http://localhost:8080",
	}
}

func TestNew(t *testing.T) {
	s, err := New(testOptions(), acceptAll)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if s.Version() != CAS30 {
		t.Errorf("Expected version '%s', got '%s'", CAS30, s.Version())
	}
}

func TestNew_UnsupportedVersion(t *testing.T) {
	opts := testOptions()
	opts.Version = "2.0"

	_, err := New(opts, acceptAll)
	if err == nil {
		t.Fatal("Expected error for unsupported version")
	}
}

func TestNew_MissingVerify(t *testing.T) {
	_, err := New(testOptions(), nil)
	if err == nil {
		t.Fatal("Expected error for missing verify function")
	}

	_, err = NewWithRequest(testOptions(), nil)
	if err == nil {
		t.Fatal("Expected error for missing verify function")
	}
}

func TestNew_MissingSSOBaseURL(t *testing.T) {
	opts := testOptions()
	opts.SSOBaseURL = ""

	_, err := New(opts, acceptAll)
	if err == nil {
		t.Fatal("Expected error for missing ssoBaseURL")
	}
}

func TestService_StripsTicket(t *testing.T) {
	s, err := New(testOptions(), acceptAll)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		input    string
		expected string
	}{
		{
			"http://localhost:8080/protected?ticket=ST-123",
			"http://localhost:8080/protected",
		},
		{
			"http://localhost:8080/protected?foo=bar&ticket=ST-123",
			"http://localhost:8080/protected?foo=bar",
		},
		{
			"http://localhost:8080/protected?ticket=ST-123&foo=bar",
			"http://localhost:8080/protected?foo=bar",
		},
		{
			"http://localhost:8080/protected",
			"http://localhost:8080/protected",
		},
		{
			"http://localhost:8080/path?a=1&ticket=ST-123&b=2",
			"http://localhost:8080/path?a=1&b=2",
		},
	}

	for _, test := range tests {
		r := httptest.NewRequest("GET", test.input, nil)

		service, err := s.Service(r)
		if err != nil {
			t.Fatalf("Service(%s): %v", test.input, err)
		}

		got, _ := url.Parse(service)
		want, _ := url.Parse(test.expected)
		if got.Scheme != want.Scheme || got.Host != want.Host || got.Path != want.Path {
			t.Errorf("Service(%s) = %s, expected %s", test.input, service, test.expected)
		}
		if got.Query().Has("ticket") {
			t.Errorf("Service(%s) still contains a ticket parameter: %s", test.input, service)
		}
		if len(got.Query()) != len(want.Query()) {
			t.Errorf("Service(%s) query mismatch: got %s, expected %s", test.input, service, test.expected)
		}

		// resolving the same request again must yield the same URL
		again, err := s.Service(r)
		if err != nil {
			t.Fatalf("Service(%s) second call: %v", test.input, err)
		}
		if again != service {
			t.Errorf("Service(%s) is not idempotent: %s then %s", test.input, service, again)
		}
	}
}

func TestService_ExplicitServiceURL(t *testing.T) {
	opts := testOptions()
	opts.ServiceURL = "/callback"

	s, err := New(opts, acceptAll)
	if err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("GET", "http://localhost:8080/somewhere/else?ticket=ST-1", nil)
	service, err := s.Service(r)
	if err != nil {
		t.Fatal(err)
	}

	if service != "http://localhost:8080/callback" {
		t.Errorf("Expected service to be 'http://localhost:8080/callback', got '%s'", service)
	}
}

func TestService_NoServerBaseURL(t *testing.T) {
	opts := testOptions()
	opts.ServerBaseURL = ""

	s, err := New(opts, acceptAll)
	if err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("GET", "http://app.example.org/protected?ticket=ST-1", nil)
	service, err := s.Service(r)
	if err != nil {
		t.Fatal(err)
	}

	if service != "http://app.example.org/protected" {
		t.Errorf("Expected service derived from the request host, got '%s'", service)
	}
}

func TestLoginURL_FiltersEmptyParams(t *testing.T) {
	s, err := New(testOptions(), acceptAll)
	if err != nil {
		t.Fatal(err)
	}

	loginURL := s.LoginURL("http://localhost:8080/protected", map[string]string{
		"renew": "true",
		"foo":   "",
	})

	u, err := url.Parse(loginURL)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(loginURL, "https://cas.example.com/cas/login?") {
		t.Errorf("Expected login URL on the SSO server, got '%s'", loginURL)
	}
	if u.Query().Get("service") != "http://localhost:8080/protected" {
		t.Errorf("Expected service parameter, got '%s'", u.Query().Get("service"))
	}
	if u.Query().Get("renew") != "true" {
		t.Errorf("Expected renew=true to be forwarded, got '%s'", u.Query().Get("renew"))
	}
	if u.Query().Has("foo") {
		t.Errorf("Expected empty param foo to be dropped, got '%s'", loginURL)
	}
}

func TestLogoutURL(t *testing.T) {
	s, err := New(testOptions(), acceptAll)
	if err != nil {
		t.Fatal(err)
	}

	if got := s.LogoutURL(); got != "https://cas.example.com/cas/logout" {
		t.Errorf("Expected logout URL to be 'https://cas.example.com/cas/logout', got '%s'", got)
	}

	got := s.LogoutURLWithService("http://localhost:8080/home")
	expected := "https://cas.example.com/cas/logout?service=http%3A%2F%2Flocalhost%3A8080%2Fhome"
	if got != expected {
		t.Errorf("Expected logout URL with service to be '%s', got '%s'", expected, got)
	}
}

func TestGetTicketFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "http://localhost:8080?ticket=ST-123456", nil)

	if ticket := GetTicketFromRequest(r); ticket != "ST-123456" {
		t.Errorf("Expected ticket to be 'ST-123456', got '%s'", ticket)
	}
}

func TestGetTicketFromRequest_NoTicket(t *testing.T) {
	r := httptest.NewRequest("GET", "http://localhost:8080", nil)

	if ticket := GetTicketFromRequest(r); ticket != "" {
		t.Errorf("Expected empty ticket, got '%s'", ticket)
	}
}
