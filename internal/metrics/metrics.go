// Package metrics publishes sensor readings as Prometheus gauges. The
// registry is an explicit object owned by the caller rather than the
// process-wide default, so its lifetime is visible and tests can scrape
// isolated instances.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aranet4-exporter/internal/aranet"
)

// Metrics holds the six sensor gauges. Each publish overwrites the previous
// value; scrapes see point-in-time snapshots, no averaging or retention.
type Metrics struct {
	registry *prometheus.Registry

	co2      prometheus.Gauge
	tempF    prometheus.Gauge
	tempC    prometheus.Gauge
	humidity prometheus.Gauge
	pressure prometheus.Gauge
	battery  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		co2: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aranet_co2",
			Help: "CO2 concentration in ppm.",
		}),
		tempF: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aranet_temp_fahrenheit",
			Help: "Temperature in degrees Fahrenheit.",
		}),
		tempC: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aranet_temp_celsius",
			Help: "Temperature in degrees Celsius.",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aranet_relative_humidity",
			Help: "Relative humidity in percent.",
		}),
		// The metric name keeps the vendor's spelling for dashboard
		// compatibility.
		pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aranet_preasure",
			Help: "Atmospheric pressure in hPa.",
		}),
		battery: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aranet_bat",
			Help: "Battery level in percent.",
		}),
	}

	m.registry.MustRegister(m.co2, m.tempF, m.tempC, m.humidity, m.pressure, m.battery)
	return m
}

// Observe publishes one reading. Both temperature units are always
// published regardless of the display preference.
func (m *Metrics) Observe(r aranet.CurrentReading) {
	m.co2.Set(float64(r.CO2))
	m.tempF.Set(r.Temp.Fahrenheit())
	m.tempC.Set(r.Temp.Celsius())
	m.humidity.Set(float64(r.Humidity))
	m.pressure.Set(r.PressureHPa())
	m.battery.Set(float64(r.Battery))
}

// Handler returns the text-exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes the metrics on addr, answering every path, until the
// context is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: m.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
