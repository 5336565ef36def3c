package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/chia4/cex-api/internal/exchange/rest"
)

type okScheme struct{}

func (okScheme) Name() string { return "stub" }

func (okScheme) Sign(rest.Payload, time.Time) http.Header { return http.Header{} }

func (okScheme) Classify(status int, body []byte) rest.Outcome {
	if status == http.StatusOK {
		return rest.Succeeded(status, body)
	}
	return rest.Rejected(status, body, "", "", "")
}

func TestSetupDisabledIsNoop(t *testing.T) {
	p, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestTransportReportsToInstalledProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	p, err := Setup(context.Background(), Config{Reader: reader})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	tr, err := rest.NewTransport(okScheme{}, rest.Options{BaseURL: srv.URL})
	require.NoError(t, err)
	require.True(t, tr.Do(context.Background(), rest.Request{Method: http.MethodGet, Path: "/ok"}).OK())
	require.False(t, tr.Do(context.Background(), rest.Request{Method: http.MethodGet, Path: "/bad"}).OK())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "cex_rest_requests" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
				exchange, _ := dp.Attributes.Value(attribute.Key("exchange"))
				require.Equal(t, "stub", exchange.AsString())
				counts[outcome.AsString()] += dp.Value
			}
		}
	}
	require.Equal(t, int64(1), counts["success"])
	require.Equal(t, int64(1), counts["application_error"])
}

func TestStripScheme(t *testing.T) {
	require.Equal(t, "collector:4318", stripScheme("http://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("collector:4318"))
}
