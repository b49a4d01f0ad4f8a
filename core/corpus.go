package core

import "github.com/CaravanStudios/opr-core-go/reshare"

// CorpusOffer is one (snapshot, reshareChain?) tuple held by a FeedCorpus.
type CorpusOffer struct {
	SnapshotKey  Key
	SnapshotUTC  int64
	ReshareChain reshare.Chain
}

// FeedCorpus is the most recent offer set observed from a single producer.
// Exactly one corpus per producer has IsLatest = true.
type FeedCorpus struct {
	HostOrgUrl    string
	ProducerID    string
	RecordedAtUTC int64
	IsLatest      bool
	Offers        []CorpusOffer
}
