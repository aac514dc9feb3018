package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aranet4-exporter/internal/aranet"
)

func sampleReading() aranet.CurrentReading {
	return aranet.CurrentReading{
		CO2:      850,
		Temp:     410,
		Pressure: 10132,
		Humidity: 45,
		Battery:  80,
		Status:   0,
	}
}

func TestObserve(t *testing.T) {
	m := New()
	m.Observe(sampleReading())

	assert.Equal(t, 850.0, testutil.ToFloat64(m.co2))
	assert.InDelta(t, 20.5, testutil.ToFloat64(m.tempC), 0.001)
	assert.InDelta(t, 68.9, testutil.ToFloat64(m.tempF), 0.001)
	assert.Equal(t, 45.0, testutil.ToFloat64(m.humidity))
	assert.InDelta(t, 1013.2, testutil.ToFloat64(m.pressure), 0.001)
	assert.Equal(t, 80.0, testutil.ToFloat64(m.battery))
}

func TestObserveOverwrites(t *testing.T) {
	m := New()
	m.Observe(sampleReading())

	next := sampleReading()
	next.CO2 = 1200
	m.Observe(next)

	assert.Equal(t, 1200.0, testutil.ToFloat64(m.co2))
}

func TestScrape(t *testing.T) {
	m := New()
	m.Observe(sampleReading())

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	// Any path answers with the exposition format.
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "aranet_co2 850")
	assert.Contains(t, text, "aranet_relative_humidity 45")
	assert.Contains(t, text, "aranet_bat 80")
	assert.Contains(t, text, "aranet_preasure 1013.2")
	assert.Contains(t, text, "aranet_temp_celsius 20.5")
	assert.Contains(t, text, "aranet_temp_fahrenheit")
}
