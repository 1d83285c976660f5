package cli

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func notifyInterrupt(c chan<- os.Signal) {
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
}

type authTransport struct {
	key  string
	base http.RoundTripper
}

func (t authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.key)
	return t.base.RoundTrip(clone)
}

// authedClient wraps the base client so every request carries the API key.
// An empty key returns the base client unchanged.
func authedClient(base *http.Client, apiKey string) *http.Client {
	if apiKey == "" {
		return base
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	clone := *base
	clone.Transport = authTransport{key: apiKey, base: rt}
	return &clone
}
