package device

import (
	"sync"

	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/prometheus/client_golang/prometheus"

	"google.golang.org/grpc/status"
)

var (
	devicePrometheusMetrics sync.Once

	deviceOperationsDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "buildbarn",
			Subsystem: "device",
			Name:      "operations_duration_seconds",
			Help:      "Amount of time spent per device operation, in seconds.",
			Buckets:   util.DecimalExponentialBuckets(-6, 7, 2),
		},
		[]string{"name", "operation", "grpc_code"})
	deviceOperationsSizeBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "device",
			Name:      "operations_size_bytes_total",
			Help:      "Number of bytes successfully transferred by device operations.",
		},
		[]string{"name", "operation"})
)

type deviceOperationMetrics struct {
	duration  prometheus.ObserverVec
	sizeBytes prometheus.Counter
}

func newDeviceOperationMetrics(name, operation string) deviceOperationMetrics {
	return deviceOperationMetrics{
		duration:  deviceOperationsDurationSeconds.MustCurryWith(map[string]string{"name": name, "operation": operation}),
		sizeBytes: deviceOperationsSizeBytes.WithLabelValues(name, operation),
	}
}

func (m *deviceOperationMetrics) observe(clock clock.Clock, f func(p []byte) error, p []byte) error {
	timeStart := clock.Now()
	err := f(p)
	m.duration.WithLabelValues(status.Code(err).String()).Observe(clock.Now().Sub(timeStart).Seconds())
	if err == nil {
		m.sizeBytes.Add(float64(len(p)))
	}
	return err
}

type metricsDevice struct {
	base  Device
	clock clock.Clock

	read  deviceOperationMetrics
	write deviceOperationMetrics
}

// NewMetricsDevice creates a decorator for Device that exposes
// Prometheus metrics on the latency, outcome and throughput of reads
// and writes.
func NewMetricsDevice(base Device, clock clock.Clock, name string) Device {
	devicePrometheusMetrics.Do(func() {
		prometheus.MustRegister(deviceOperationsDurationSeconds)
		prometheus.MustRegister(deviceOperationsSizeBytes)
	})

	return &metricsDevice{
		base:  base,
		clock: clock,
		read:  newDeviceOperationMetrics(name, "Read"),
		write: newDeviceOperationMetrics(name, "Write"),
	}
}

func (d *metricsDevice) Read(offset uint64, p []byte) error {
	return d.read.observe(d.clock, func(p []byte) error {
		return d.base.Read(offset, p)
	}, p)
}

func (d *metricsDevice) Write(offset uint64, p []byte) error {
	return d.write.observe(d.clock, func(p []byte) error {
		return d.base.Write(offset, p)
	}, p)
}

func (d *metricsDevice) GetSizeBytes() uint64 {
	return d.base.GetSizeBytes()
}

func (d *metricsDevice) Sync() error {
	return d.base.Sync()
}

func (d *metricsDevice) Close() error {
	return d.base.Close()
}
