package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammed-shakir/zonegrid/internal/core/observability"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	return rr.Body.String()
}

func TestProvider_RegistersBuildInfo_AndMergesDefaultRegistry(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test", Revision: "r", Branch: "b", BuildDate: "now"}})
	if p.Path() != "/metrics" {
		t.Fatalf("Path=%q want /metrics", p.Path())
	}

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "smoke"})
	p.Register(g)
	g.Set(42)
	if n := testutil.CollectAndCount(g); n == 0 {
		t.Fatalf("expected at least 1 sample from test_gauge, got %d", n)
	}

	body := scrape(t, p)
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected go_goroutines in payload; got:\n%s", body)
	}
	if !strings.Contains(body, `zonegrid_build_info{`) {
		t.Fatalf("expected zonegrid_build_info in payload; got:\n%s", body)
	}
	if !strings.Contains(body, "test_gauge 42") {
		t.Fatalf("expected registered gauge in payload; got:\n%s", body)
	}
}

func TestProvider_ExposesDomainCounters(t *testing.T) {
	p := Init(Config{})
	observability.IncResolution("GREY_ZONE")
	observability.ObserveHTTP("GET", "/api/v1/locations/resolve", 200, 0.002)

	body := scrape(t, p)
	for _, want := range []string{
		`zone_resolutions_total{coverage="GREY_ZONE"}`,
		`http_requests_total{method="GET",route="/api/v1/locations/resolve",status="200"}`,
		`version="dev"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in payload:\n%s", want, body)
		}
	}
}
