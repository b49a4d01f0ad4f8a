package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/teris-io/shortid"

	"github.com/CaravanStudios/opr-core-go/core"
)

// Key layout. buntdb orders keys lexicographically, so every component
// that must sort numerically (timestamps) is zero-padded to a fixed
// width; 19 digits covers every int64 UTC-ms value this engine will ever
// see for the next 292 million years.
const (
	nsKV           = "kv"
	nsSnapshot     = "snap"
	nsCorpusOffer  = "corpusoffer"
	nsCorpusLatest = "corpuslatest"
	nsTimeline     = "timeline"
	nsAccept       = "accept"
	nsProducerMD   = "producermd"
	nsKnownOrg     = "knownorg"
)

func pad(t int64) string { return fmt.Sprintf("%019d", t) }

func kvKey(host, key string) string {
	return strings.Join([]string{nsKV, host, key}, "|")
}

func kvPrefixPattern(host, keyPrefix string) string {
	return kvKey(host, keyPrefix) + "*"
}

func snapshotKey(host string, key core.Key, updateUTC int64) string {
	return strings.Join([]string{nsSnapshot, host, key.PostingOrgUrl, key.OfferID, pad(updateUTC)}, "|")
}

func snapshotPrefixPattern(host string, key core.Key) string {
	return strings.Join([]string{nsSnapshot, host, key.PostingOrgUrl, key.OfferID, ""}, "|") + "*"
}

func corpusOfferKey(host, producerID string, key core.Key) string {
	return strings.Join([]string{nsCorpusOffer, host, key.PostingOrgUrl, key.OfferID, producerID}, "|")
}

func corpusOfferSourcesPattern(host string, key core.Key) string {
	return strings.Join([]string{nsCorpusOffer, host, key.PostingOrgUrl, key.OfferID, ""}, "|") + "*"
}

func corpusLatestKey(host, producerID string) string {
	return strings.Join([]string{nsCorpusLatest, host, producerID}, "|")
}

func corpusOffersByProducerPattern(host, producerID string) string {
	return strings.Join([]string{nsCorpusOffer, host}, "|") + "*|" + producerID
}

func timelineKey(host string, e core.TimelineEntry, seq string) string {
	return strings.Join([]string{nsTimeline, host, e.PostingOrgUrl, e.OfferID, pad(e.StartTimeUTC), e.TargetOrganizationUrl, seq}, "|")
}

func timelinePrefixPattern(host string, key core.Key) string {
	return strings.Join([]string{nsTimeline, host, key.PostingOrgUrl, key.OfferID, ""}, "|") + "*"
}

func timelineAllPattern(host string) string {
	return strings.Join([]string{nsTimeline, host}, "|") + "|*"
}

func acceptKey(host string, key core.Key, acceptedAtUTC int64, seq string) string {
	return strings.Join([]string{nsAccept, host, pad(acceptedAtUTC), key.PostingOrgUrl, key.OfferID, seq}, "|")
}

func acceptAllPattern(host string) string {
	return strings.Join([]string{nsAccept, host}, "|") + "*"
}

func producerMDKey(host, producerID string) string {
	return strings.Join([]string{nsProducerMD, host, producerID}, "|")
}

func producerMDAllPattern(host string) string {
	return strings.Join([]string{nsProducerMD, host}, "|") + "*"
}

func knownOrgKey(host, orgURL string) string {
	return strings.Join([]string{nsKnownOrg, host, orgURL}, "|")
}

func knownOrgAllPattern(host string) string {
	return strings.Join([]string{nsKnownOrg, host}, "|") + "*"
}

// seq returns a short, sortable-enough tiebreaker for keys whose other
// components may collide (two timeline entries for the same offer,
// target org, and start time). Not a page token: see EncodePageToken for
// that.
func seq() string {
	id, err := shortid.Generate()
	if err != nil {
		// shortid's generator only errors on exhausted/misconfigured
		// worker ids, which this process never sets; fall back to a
		// fixed tiebreaker rather than failing the write.
		return "0"
	}
	return id
}

// EncodePageToken and DecodePageToken implement the opaque HISTORY page
// token (see DESIGN.md for the encoding decision). This engine encodes
// nothing but a skip offset: the token is not meant to be decodable by
// callers, only round-tripped.
func EncodePageToken(skip int) string {
	return strconv.Itoa(skip)
}

func DecodePageToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	return strconv.Atoi(token)
}
