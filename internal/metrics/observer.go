// Package metrics exports preset activation telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer records what the preset core does. A nil *Observer is valid and
// records nothing.
type Observer struct {
	activations     *prometheus.CounterVec
	activationTime  prometheus.Histogram
	bookOps         *prometheus.CounterVec
	lockConflicts   *prometheus.CounterVec
	engineKeys      *prometheus.CounterVec
	renameProposals *prometheus.CounterVec
}

// NewObserver registers the collectors on reg, reusing collectors that are
// already registered.
func NewObserver(namespace string, reg prometheus.Registerer) (*Observer, error) {
	if namespace == "" {
		namespace = "wilocks"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Preset activations by whether a preset or none was targeted.",
		}, []string{"target"}),
		activationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "activation_duration_seconds",
			Help:      "Time spent applying a preset activation.",
			Buckets:   prometheus.DefBuckets,
		}),
		bookOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "book_operations_total",
			Help:      "Book load/unload requests by outcome.",
		}, []string{"op", "outcome"}),
		lockConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_conflicts_total",
			Help:      "Lock conflicts by user decision.",
		}, []string{"decision"}),
		engineKeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_settings_keys_total",
			Help:      "Engine settings keys applied by outcome.",
		}, []string{"outcome"}),
		renameProposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "book_rename_proposals_total",
			Help:      "Detected book renames by user decision.",
		}, []string{"decision"}),
	}
	var err error
	if o.activations, err = register(reg, o.activations); err != nil {
		return nil, err
	}
	if o.activationTime, err = register(reg, o.activationTime); err != nil {
		return nil, err
	}
	if o.bookOps, err = register(reg, o.bookOps); err != nil {
		return nil, err
	}
	if o.lockConflicts, err = register(reg, o.lockConflicts); err != nil {
		return nil, err
	}
	if o.engineKeys, err = register(reg, o.engineKeys); err != nil {
		return nil, err
	}
	if o.renameProposals, err = register(reg, o.renameProposals); err != nil {
		return nil, err
	}
	return o, nil
}

// register adds c to reg, or returns the collector already registered under
// the same descriptor.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

// Activation records one completed activation.
func (o *Observer) Activation(target string, d time.Duration) {
	if o == nil {
		return
	}
	if target == "" {
		target = "none"
	} else {
		target = "preset"
	}
	o.activations.WithLabelValues(target).Inc()
	o.activationTime.Observe(d.Seconds())
}

// BookOp records one load or unload request.
func (o *Observer) BookOp(op string, err error) {
	if o == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.bookOps.WithLabelValues(op, outcome).Inc()
}

// LockConflict records the user's answer to a lock conflict prompt.
func (o *Observer) LockConflict(accepted bool) {
	if o == nil {
		return
	}
	o.lockConflicts.WithLabelValues(decision(accepted)).Inc()
}

// EngineKeys records applied and failed engine settings keys.
func (o *Observer) EngineKeys(applied, failed int) {
	if o == nil {
		return
	}
	o.engineKeys.WithLabelValues("applied").Add(float64(applied))
	o.engineKeys.WithLabelValues("failed").Add(float64(failed))
}

// RenameProposal records the user's answer to a book rename proposal.
func (o *Observer) RenameProposal(accepted bool) {
	if o == nil {
		return
	}
	o.renameProposals.WithLabelValues(decision(accepted)).Inc()
}

func decision(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "declined"
}
