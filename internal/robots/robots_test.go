package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/config"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/fetcher"
)

func newTestAgent(t *testing.T, robotsBody string, status int, overrides ...string) (*Agent, *httptest.Server, *int) {
	t.Helper()
	hits := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		*hits++
		w.WriteHeader(status)
		w.Write([]byte(robotsBody))
	}))
	t.Cleanup(srv.Close)

	f := fetcher.New(fetcher.Options{UserAgent: "flow-test/1.0", Timeout: 5 * time.Second})
	agent := NewAgent(config.RobotsConfig{
		Respect:   true,
		UserAgent: "flow-test",
		Overrides: overrides,
		CacheTTL:  config.DurationFrom(time.Minute),
	}, f)
	return agent, srv, hits
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestAllowedHonoursDisallowRules(t *testing.T) {
	agent, srv, _ := newTestAgent(t, "User-agent: *\nDisallow: /private/\n", http.StatusOK)

	assert.True(t, agent.Allowed(context.Background(), mustParse(t, srv.URL+"/jobs")))
	assert.False(t, agent.Allowed(context.Background(), mustParse(t, srv.URL+"/private/jobs")))
}

func TestAllowedCachesPerHost(t *testing.T) {
	agent, srv, hits := newTestAgent(t, "User-agent: *\nDisallow:\n", http.StatusOK)

	for i := 0; i < 5; i++ {
		agent.Allowed(context.Background(), mustParse(t, srv.URL+"/jobs"))
	}
	assert.Equal(t, 1, *hits)

	// Purge keys on the full host, port included.
	agent.Purge(mustParse(t, srv.URL).Host)
	agent.Allowed(context.Background(), mustParse(t, srv.URL+"/jobs"))
	assert.Equal(t, 2, *hits)
}

func TestAllowedOverrideBypassesRules(t *testing.T) {
	agent, srv, hits := newTestAgent(t, "User-agent: *\nDisallow: /\n", http.StatusOK)
	assert.False(t, agent.Allowed(context.Background(), mustParse(t, srv.URL+"/jobs")))

	host := mustParse(t, srv.URL).Hostname()
	bypass, _, _ := newTestAgent(t, "User-agent: *\nDisallow: /\n", http.StatusOK, host)
	assert.True(t, bypass.Allowed(context.Background(), mustParse(t, srv.URL+"/jobs")))
	assert.Equal(t, 1, *hits, "override hosts never trigger a robots fetch")
}

func TestAllowedFailsOpenOnFetchError(t *testing.T) {
	agent, srv, _ := newTestAgent(t, "", http.StatusOK)
	srv.Close()

	assert.True(t, agent.Allowed(context.Background(), mustParse(t, srv.URL+"/jobs")))
}

func TestAllowedMissingRobotsMeansEverythingGoes(t *testing.T) {
	agent, srv, _ := newTestAgent(t, "not found", http.StatusNotFound)
	assert.True(t, agent.Allowed(context.Background(), mustParse(t, srv.URL+"/anything")))
}

func TestAllowedRejectsRelativeURLs(t *testing.T) {
	agent, _, _ := newTestAgent(t, "", http.StatusOK)
	assert.False(t, agent.Allowed(context.Background(), mustParse(t, "/jobs")))
	assert.False(t, agent.Allowed(context.Background(), nil))
}
