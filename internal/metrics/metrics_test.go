package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerExposesCounters(t *testing.T) {
	ProviderMisses.WithLabelValues("fxratesapi").Inc()
	if got := testutil.ToFloat64(ProviderMisses.WithLabelValues("fxratesapi")); got < 1 {
		t.Fatalf("provider misses = %v", got)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `signaldesk_provider_misses_total{provider="fxratesapi"}`) {
		t.Fatalf("metric not exposed:\n%s", body)
	}
}
