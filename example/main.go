package main

import (
	"flag"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	cas "github.com/dreimert/passport-cas"
)

var (
	configPath = flag.String("config", "config.yaml", "strategy config file")
	addr       = flag.String("addr", ":8080", "listen address")
	sessionKey = flag.String("session-key", "change-me-32-bytes-long-at-least", "session cookie signing key")
)

var log = logrus.New()

func main() {
	flag.Parse()

	opts, err := cas.LoadOptions(*configPath)
	if err != nil {
		log.Fatalf("load options: %v", err)
	}

	strategy, err := cas.New(opts, verify)
	if err != nil {
		log.Fatalf("build strategy: %v", err)
	}

	store := cas.NewGorillaSessionStore("cas_session", 3600, []byte(*sessionKey))
	middleware := cas.NewMiddleware(strategy, store)
	middleware.IgnorePaths = []string{"/", "/health"}

	http.HandleFunc("/", homeHandler)
	http.Handle("/profile", middleware.Handler(http.HandlerFunc(profileHandler)))
	http.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, middleware.Logout(w, r), http.StatusFound)
	})
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK")
	})

	log.WithField("addr", *addr).Info("server starting")
	log.Fatal(http.ListenAndServe(*addr, nil))
}

// verify accepts every validated principal as-is. A real application
// would look the user up in its own store here.
func verify(p *cas.Principal) (any, map[string]any, error) {
	log.WithField("user", p.User).Info("user authenticated")
	return p, nil, nil
}

func homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>CAS Demo</title></head>
<body>
    <h1>CAS single sign-on demo</h1>
    <ul>
        <li><a href="/profile">Profile (protected)</a></li>
        <li><a href="/logout">Logout</a></li>
    </ul>
</body>
</html>`)
}

func profileHandler(w http.ResponseWriter, r *http.Request) {
	p := cas.GetPrincipalFromContext(r.Context())
	if p == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Welcome, %s!\n\nAttributes:\n", p.User)
	for name, value := range p.Attributes {
		fmt.Fprintf(w, "  %s: %v\n", name, value)
	}
}
