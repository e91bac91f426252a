package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nexus"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	workerStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "starts_total",
			Help:      "Number of successful worker instance launches.",
		}, []string{"worker"},
	)
	workerCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "crashes_total",
			Help:      "Number of worker instances found dead by the liveness check.",
		}, []string{"worker"},
	)
	workerRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "restarts_total",
			Help:      "Number of worker instance restarts by trigger.",
		}, []string{"worker", "trigger"},
	)
	workerStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "stops_total",
			Help:      "Number of worker instance stops (graceful or kill).",
		}, []string{"worker"},
	)
	launchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "launch_failures_total",
			Help:      "Number of instances that were not running after the start probe.",
		}, []string{"worker"},
	)
	fleetRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fleet",
			Name:      "restarts_total",
			Help:      "Number of fleet-wide restarts by trigger (signal, watch).",
		}, []string{"trigger"},
	)
	runningInstances = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "running_instances",
			Help:      "Current running instances per worker definition.",
		}, []string{"worker"},
	)
	instanceMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "instance",
			Name:      "memory_megabytes",
			Help:      "Resident memory of a worker instance.",
		}, []string{"instance"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{workerStarts, workerCrashes, workerRestarts, workerStops, launchFailures, fleetRestarts, runningInstances, instanceMemory}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Enabled reports whether Register succeeded.
func Enabled() bool { return regOK.Load() }

// Handler serves metrics of the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics of g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(worker string) {
	if regOK.Load() {
		workerStarts.WithLabelValues(worker).Inc()
	}
}

func IncCrash(worker string) {
	if regOK.Load() {
		workerCrashes.WithLabelValues(worker).Inc()
	}
}

func IncRestart(worker, trigger string) {
	if regOK.Load() {
		workerRestarts.WithLabelValues(worker, trigger).Inc()
	}
}

func IncStop(worker string) {
	if regOK.Load() {
		workerStops.WithLabelValues(worker).Inc()
	}
}

func IncLaunchFailure(worker string) {
	if regOK.Load() {
		launchFailures.WithLabelValues(worker).Inc()
	}
}

func IncFleetRestart(trigger string) {
	if regOK.Load() {
		fleetRestarts.WithLabelValues(trigger).Inc()
	}
}

func SetRunningInstances(worker string, n int) {
	if regOK.Load() {
		runningInstances.WithLabelValues(worker).Set(float64(n))
	}
}

func SetInstanceMemory(instance string, mb float64) {
	if regOK.Load() {
		instanceMemory.WithLabelValues(instance).Set(mb)
	}
}

// ForgetInstance drops per-instance series, e.g. after shutdown.
func ForgetInstance(instance string) {
	if regOK.Load() {
		instanceMemory.DeleteLabelValues(instance)
	}
}
