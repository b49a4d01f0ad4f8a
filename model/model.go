// Package model implements the offer-model orchestrator: UPDATE, LIST,
// ACCEPT, RESERVE, REJECT, HISTORY, and producer-metadata read/write,
// each running under one storage.Storage transaction.
//
// Grounded structurally on an xaction-style run-loop shape (open
// transaction, filter-with-skip, recompute, commit, fan out) adapted from
// bucket/object copy semantics to offer-ingest semantics. Libraries:
// json-iterator/go for marshaling snapshots for archive export,
// prometheus/client_golang for operation counters.
/*
 * Copyright (c) 2024, Open Product Recovery contributors.
 */
package model

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/CaravanStudios/opr-core-go/bus"
	"github.com/CaravanStudios/opr-core-go/cmn"
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/reshare"
	"github.com/CaravanStudios/opr-core-go/storage"
	"github.com/CaravanStudios/opr-core-go/storage/archive"
)

// SchemaValidator is the narrow contract for an external JSON-schema
// validation collaborator, out of scope for this engine: a caller plugs
// in a real implementation (e.g. wrapping a schema compiler); a nil
// Validator on OfferModel skips validation entirely.
type SchemaValidator interface {
	Validate(payload map[string]interface{}) error
}

// Metrics are the operation counters UPDATE/LIST/ACCEPT/RESERVE/REJECT
// increment.
type Metrics struct {
	Operations *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opr",
			Subsystem: "model",
			Name:      "operations_total",
			Help:      "Count of offer-model operations by name and outcome.",
		}, []string{"op", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Operations)
	}
	return m
}

func (m *Metrics) observe(op, outcome string) {
	if m == nil || m.Operations == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
}

// OfferModel binds one host's policy, storage, and cryptographic
// collaborators together. One instance serves exactly one hostOrgUrl;
// config is always relative to exactly one host.
type OfferModel struct {
	Host      string
	Clock     cmn.Clock
	Signer    reshare.Signer
	Verifier  reshare.Verifier
	Policy    core.ListingPolicy
	Storage   storage.Storage
	Bus       *bus.ChangeBus
	Validator SchemaValidator
	Metrics   *Metrics

	// Archiver, when set, receives a compressed copy of every
	// OfferSnapshot the GC pass is about to delete, so an operator can
	// recover a GC'd snapshot's bytes after the fact. A nil Archiver
	// means GC deletes straight away, matching the spec's storage
	// contract, which has no archive concept of its own.
	Archiver archive.Backend
}

func New(host string, st storage.Storage, signer reshare.Signer, verifier reshare.Verifier, policy core.ListingPolicy) *OfferModel {
	return &OfferModel{
		Host:     host,
		Clock:    cmn.WallClock{},
		Signer:   signer,
		Verifier: verifier,
		Policy:   policy,
		Storage:  st,
		Bus:      bus.New(),
	}
}

func (m *OfferModel) now() int64 { return m.Clock.NowUTCMs() }

func (m *OfferModel) fire(changes []core.OfferChange) {
	if m.Bus == nil || len(changes) == 0 {
		return
	}
	for _, c := range changes {
		m.Bus.Fire(c)
	}
}
