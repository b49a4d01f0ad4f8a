package model

import (
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/storage"
)

// GetProducerMetadata implements the PRODUCER-METADATA read: creates a
// default {nextRunTimestampUTC: now, lastUpdateTimeUTC: now}
// row under a transaction when absent, returning it; returns the stored
// row unchanged when one already exists.
func (m *OfferModel) GetProducerMetadata(producerID string) (*core.ProducerMetadata, error) {
	now := m.now()
	var out core.ProducerMetadata
	err := m.Storage.Update(func(tx storage.Txn) error {
		existing, found, err := tx.GetOfferProducerMetadata(m.Host, producerID)
		if err != nil {
			return err
		}
		if found {
			out = *existing
			return nil
		}
		out = core.ProducerMetadata{OrganizationUrl: producerID, NextRunTimestampUTC: now, LastUpdateTimeUTC: &now}
		return tx.WriteOfferProducerMetadata(m.Host, out)
	})
	if err != nil {
		m.Metrics.observe("PRODUCER_METADATA_GET", "error")
		return nil, err
	}
	m.Metrics.observe("PRODUCER_METADATA_GET", "ok")
	return &out, nil
}

// PutProducerMetadata implements the PRODUCER-METADATA write: a
// straightforward upsert.
func (m *OfferModel) PutProducerMetadata(md core.ProducerMetadata) error {
	err := m.Storage.Update(func(tx storage.Txn) error {
		return tx.WriteOfferProducerMetadata(m.Host, md)
	})
	if err != nil {
		m.Metrics.observe("PRODUCER_METADATA_PUT", "error")
		return err
	}
	m.Metrics.observe("PRODUCER_METADATA_PUT", "ok")
	return nil
}
