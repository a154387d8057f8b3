package rmetrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jakmeier/osnet/pkg/rmetrics"
)

func TestMetricsHandlerExposesRegisteredSeries(t *testing.T) {
	m := rmetrics.New()

	m.PacketsSent.Add(2)
	m.PacketsReceived.Inc()
	m.PacketsDropped.Inc()
	m.PacketsRetransmitted.Inc()
	m.ConnectionsOpened.Inc()
	m.ConnectionsActive.Set(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "reliudp_packets_sent_total 2")
	require.Contains(t, body, "reliudp_packets_received_total 1")
	require.Contains(t, body, "reliudp_packets_dropped_total 1")
	require.Contains(t, body, "reliudp_packets_retransmitted_total 1")
	require.Contains(t, body, "reliudp_connections_opened_total 1")
	require.Contains(t, body, "reliudp_connections_active 1")
}

func TestNewRegistersDistinctInstancesPerCall(t *testing.T) {
	a := rmetrics.New()
	b := rmetrics.New()

	a.PacketsSent.Inc()

	reqA := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	recA := httptest.NewRecorder()
	a.Handler().ServeHTTP(recA, reqA)
	require.Contains(t, recA.Body.String(), "reliudp_packets_sent_total 1")

	reqB := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	recB := httptest.NewRecorder()
	b.Handler().ServeHTTP(recB, reqB)
	require.Contains(t, recB.Body.String(), "reliudp_packets_sent_total 0")
}
