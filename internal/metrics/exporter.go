package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/micro-ha/mwan3-status/internal/luci"
	"github.com/micro-ha/mwan3-status/internal/model"
	"github.com/micro-ha/mwan3-status/internal/sensor"
)

const namespace = "mwan3"

var sensorLabels = []string{"router", "interface"}

type gaugeDesc struct {
	desc  *prometheus.Desc
	value func(model.InterfaceStatus) float64
}

// Exporter publishes registered sensors and poll statistics in the
// Prometheus exposition format. Sensor gauges are read at scrape time.
type Exporter struct {
	registry *prometheus.Registry

	polls          *prometheus.CounterVec
	pollDuration   prometheus.Histogram
	lastInterfaces prometheus.Gauge
	lastSuccess    prometheus.Gauge

	info   *prometheus.Desc
	gauges []gaugeDesc

	mu      sync.RWMutex
	sensors []*sensor.Sensor
}

func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	e := &Exporter{
		registry: reg,
		polls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "Status polls by result (ok or error code)",
			},
			[]string{"result"},
		),
		pollDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_duration_seconds",
				Help:      "Time to log in and fetch interface_status",
				Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30},
			},
		),
		lastInterfaces: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_poll_interfaces",
			Help:      "Interfaces returned by the last successful poll",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful poll",
		}),
		info: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "interface", "info"),
			"Interface status as a label",
			append(append([]string{}, sensorLabels...), "status"),
			nil,
		),
	}
	e.gauges = []gaugeDesc{
		e.gauge("up", "1 when mwan3 considers the interface up", func(s model.InterfaceStatus) float64 { return boolValue(s.Up) }),
		e.gauge("enabled", "1 when the interface is enabled", func(s model.InterfaceStatus) float64 { return boolValue(s.Enabled) }),
		e.gauge("running", "1 when tracking is running", func(s model.InterfaceStatus) float64 { return boolValue(s.Running) }),
		e.gauge("score", "Tracking score", func(s model.InterfaceStatus) float64 { return float64(s.Score) }),
		e.gauge("age", "Seconds since the last tracking check", func(s model.InterfaceStatus) float64 { return float64(s.Age) }),
		e.gauge("turn", "Tracking turn counter", func(s model.InterfaceStatus) float64 { return float64(s.Turn) }),
		e.gauge("online_seconds", "Seconds the interface has been online", func(s model.InterfaceStatus) float64 { return float64(s.Online) }),
		e.gauge("uptime_seconds", "Interface uptime", func(s model.InterfaceStatus) float64 { return float64(s.Uptime) }),
		e.gauge("lost", "Lost tracking probes", func(s model.InterfaceStatus) float64 { return float64(s.Lost) }),
		e.gauge("offline_seconds", "Seconds the interface has been offline", func(s model.InterfaceStatus) float64 { return float64(s.Offline) }),
		e.gauge("track_ips", "Number of tracked hosts", func(s model.InterfaceStatus) float64 { return float64(len(s.TrackIP)) }),
	}
	reg.MustRegister(e)
	return e
}

func (e *Exporter) gauge(name, help string, value func(model.InterfaceStatus) float64) gaugeDesc {
	return gaugeDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "interface", name), help, sensorLabels, nil),
		value: value,
	}
}

// RegisterSensors replaces the exported sensor set.
func (e *Exporter) RegisterSensors(sensors []*sensor.Sensor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sensors = append([]*sensor.Sensor{}, sensors...)
}

// ObservePoll records the outcome of one poll.
func (e *Exporter) ObservePoll(duration time.Duration, interfaces int, err error) {
	e.pollDuration.Observe(duration.Seconds())
	if err != nil {
		e.polls.WithLabelValues(luci.ErrorCode(err)).Inc()
		return
	}
	e.polls.WithLabelValues("ok").Inc()
	e.lastInterfaces.Set(float64(interfaces))
	e.lastSuccess.SetToCurrentTime()
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.info
	for _, g := range e.gauges {
		ch <- g.desc
	}
}

// Collect emits gauges for sensors whose interface is in the latest snapshot.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.mu.RLock()
	sensors := append([]*sensor.Sensor{}, e.sensors...)
	e.mu.RUnlock()

	for _, s := range sensors {
		item, ok := s.Value()
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(e.info, prometheus.GaugeValue, 1, s.Router, s.Interface, s.State())
		for _, g := range e.gauges {
			ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, g.value(item), s.Router, s.Interface)
		}
	}
}

func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
