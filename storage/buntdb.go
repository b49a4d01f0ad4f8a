package storage

import (
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/CaravanStudios/opr-core-go/cmn"
	"github.com/CaravanStudios/opr-core-go/cmn/cos"
	"github.com/CaravanStudios/opr-core-go/cmn/ivl"
	"github.com/CaravanStudios/opr-core-go/cmn/nlog"
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/reshare"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BuntStorage is the buntdb-backed Storage implementation. Pass ":memory:"
// for an ephemeral, test-only database or a file path for a durable one —
// both are meaningful buntdb.Open arguments.
type BuntStorage struct {
	db *buntdb.DB
}

func OpenBuntStorage(path string) (*BuntStorage, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cmn.Wrap(cmn.CodeDatabase, err, "open buntdb")
	}
	return &BuntStorage{db: db}, nil
}

func (s *BuntStorage) Update(fn func(Txn) error) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		return fn(&buntTxn{tx: tx})
	})
}

func (s *BuntStorage) View(fn func(Txn) error) error {
	return s.db.View(func(tx *buntdb.Tx) error {
		return fn(&buntTxn{tx: tx})
	})
}

func (s *BuntStorage) Close() error { return s.db.Close() }

// buntTxn adapts a single buntdb.Tx to the Txn contract. It is valid only
// for the lifetime of the Update/View closure that produced it.
type buntTxn struct {
	tx *buntdb.Tx
}

func dbErr(err error) error {
	if err == nil || err == buntdb.ErrNotFound {
		return err
	}
	return cmn.Wrap(cmn.CodeDatabase, err, "storage")
}

func isNotFound(err error) bool { return err == buntdb.ErrNotFound }

// --- KV ---------------------------------------------------------------

func (t *buntTxn) StoreValue(host, key string, val []byte) error {
	_, _, err := t.tx.Set(kvKey(host, key), string(val), nil)
	return dbErr(err)
}

func (t *buntTxn) GetValues(host, keyPrefix string) (*Cursor[KV], error) {
	prefix := kvKey(host, keyPrefix)
	var out []KV
	err := t.tx.AscendKeys(kvPrefixPattern(host, keyPrefix), func(k, v string) bool {
		out = append(out, KV{Key: strings.TrimPrefix(k, prefix), Value: []byte(v)})
		return true
	})
	if err != nil {
		return nil, dbErr(err)
	}
	return NewCursor(out), nil
}

func (t *buntTxn) ClearAllValues(host, keyPrefix string) (int, error) {
	var keys []string
	if err := t.tx.AscendKeys(kvPrefixPattern(host, keyPrefix), func(k, _ string) bool {
		keys = append(keys, k)
		return true
	}); err != nil {
		return 0, dbErr(err)
	}
	for _, k := range keys {
		if _, err := t.tx.Delete(k); err != nil && !isNotFound(err) {
			return 0, dbErr(err)
		}
	}
	return len(keys), nil
}

// --- offers / corpora ---------------------------------------------------

func (t *buntTxn) PutOfferSnapshot(host string, snap core.OfferSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, _, err = t.tx.Set(snapshotKey(host, snap.Key(), snap.LastUpdateUTC), string(b), nil)
	return dbErr(err)
}

func (t *buntTxn) GetOffer(host string, key core.Key, atUpdateUTC *int64) (*core.OfferSnapshot, bool, error) {
	if atUpdateUTC != nil {
		v, err := t.tx.Get(snapshotKey(host, key, *atUpdateUTC))
		if isNotFound(err) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, dbErr(err)
		}
		var snap core.OfferSnapshot
		if err := json.Unmarshal([]byte(v), &snap); err != nil {
			return nil, false, err
		}
		return &snap, true, nil
	}

	var latest *core.OfferSnapshot
	err := t.tx.DescendKeys(snapshotPrefixPattern(host, key), func(_, v string) bool {
		var snap core.OfferSnapshot
		if err := json.Unmarshal([]byte(v), &snap); err != nil {
			nlog.Errorf("storage: decode snapshot for %s: %v", key, err)
			return true
		}
		latest = &snap
		return false // DescendKeys visits newest first; one hit is enough
	})
	if err != nil {
		return nil, false, dbErr(err)
	}
	return latest, latest != nil, nil
}

func (t *buntTxn) DeleteOfferSnapshot(host string, key core.Key, updateUTC int64) error {
	_, err := t.tx.Delete(snapshotKey(host, key, updateUTC))
	if isNotFound(err) {
		return nil
	}
	return dbErr(err)
}

func (t *buntTxn) InsertOrUpdateOfferInCorpus(host, producerID string, snap core.OfferSnapshot, chain reshare.Chain) (UpdateResult, error) {
	key := snap.Key()

	if err := t.PutOfferSnapshot(host, snap); err != nil {
		return "", err
	}

	_, alreadyThisProducer, err := t.GetOfferFromCorpus(host, producerID, key)
	if err != nil {
		return "", err
	}

	co := core.CorpusOffer{SnapshotKey: key, SnapshotUTC: snap.LastUpdateUTC, ReshareChain: chain}
	b, err := json.Marshal(co)
	if err != nil {
		return "", err
	}
	if _, _, err := t.tx.Set(corpusOfferKey(host, producerID, key), string(b), nil); err != nil {
		return "", dbErr(err)
	}

	sources, err := t.GetOfferSources(host, key)
	if err != nil {
		return "", err
	}
	switch {
	case alreadyThisProducer:
		return UpdateResultUpdate, nil
	case len(sources) > 1:
		// Some other producer's corpus already carried this offer; the
		// global set gained a source, not a new offer.
		return UpdateResultNone, nil
	default:
		return UpdateResultAdd, nil
	}
}

func (t *buntTxn) DeleteOfferInCorpus(host, producerID string, key core.Key) (UpdateResult, error) {
	if _, err := t.tx.Delete(corpusOfferKey(host, producerID, key)); err != nil {
		if isNotFound(err) {
			return UpdateResultNone, nil
		}
		return "", dbErr(err)
	}
	sources, err := t.GetOfferSources(host, key)
	if err != nil {
		return "", err
	}
	if len(sources) == 0 {
		return UpdateResultUpdate, nil // offer vanished from the global set
	}
	return UpdateResultNone, nil
}

func (t *buntTxn) GetOfferFromCorpus(host, producerID string, key core.Key) (*core.CorpusOffer, bool, error) {
	v, err := t.tx.Get(corpusOfferKey(host, producerID, key))
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dbErr(err)
	}
	var co core.CorpusOffer
	if err := json.Unmarshal([]byte(v), &co); err != nil {
		return nil, false, err
	}
	return &co, true, nil
}

func (t *buntTxn) GetCorpusOffers(host, producerID string) (*Cursor[core.CorpusOffer], error) {
	var out []core.CorpusOffer
	err := t.tx.AscendKeys(corpusOffersByProducerPattern(host, producerID), func(_, v string) bool {
		var co core.CorpusOffer
		if err := json.Unmarshal([]byte(v), &co); err != nil {
			nlog.Errorf("storage: decode corpus offer: %v", err)
			return true
		}
		out = append(out, co)
		return true
	})
	if err != nil {
		return nil, dbErr(err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SnapshotKey.PostingOrgUrl != out[j].SnapshotKey.PostingOrgUrl {
			return out[i].SnapshotKey.PostingOrgUrl < out[j].SnapshotKey.PostingOrgUrl
		}
		return out[i].SnapshotKey.OfferID < out[j].SnapshotKey.OfferID
	})
	return NewCursor(out), nil
}

func (t *buntTxn) GetOfferSources(host string, key core.Key) ([]string, error) {
	var out []string
	err := t.tx.AscendKeys(corpusOfferSourcesPattern(host, key), func(k, _ string) bool {
		parts := strings.Split(k, "|")
		out = append(out, parts[len(parts)-1])
		return true
	})
	if err != nil {
		return nil, dbErr(err)
	}
	return out, nil
}

// --- timelines -----------------------------------------------------------

func (t *buntTxn) AddTimelineEntries(host string, entries []core.TimelineEntry) error {
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, _, err := t.tx.Set(timelineKey(host, e, seq()), string(b), nil); err != nil {
			return dbErr(err)
		}
	}
	return nil
}

func (t *buntTxn) GetTimelineForOffer(host string, key core.Key, window *ivl.Interval, targetOrg string) (*Cursor[core.TimelineEntry], error) {
	var out []core.TimelineEntry
	err := t.tx.AscendKeys(timelinePrefixPattern(host, key), func(_, v string) bool {
		var e core.TimelineEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			nlog.Errorf("storage: decode timeline entry: %v", err)
			return true
		}
		if targetOrg != "" && e.TargetOrganizationUrl != targetOrg {
			return true
		}
		if window != nil {
			if _, ok := ivl.Intersect(ivl.Interval{Start: e.StartTimeUTC, End: e.EndTimeUTC}, *window); !ok {
				return true
			}
		}
		out = append(out, e)
		return true
	})
	if err != nil {
		return nil, dbErr(err)
	}
	return NewCursor(out), nil
}

// TruncateFutureTimelineForOffer truncates live timeline entries to end at
// now and deletes all timeline entries strictly in the future. Rejection
// entries are exempt: a rejection is a permanent fact about (offer,
// rejectingOrg), not part of the listing schedule the recomputation
// algorithm rebuilds each call, so clipping one to tStar would wrongly
// un-reject an org the moment the timeline is next recomputed.
func (t *buntTxn) TruncateFutureTimelineForOffer(host string, key core.Key, tStar int64) error {
	var toDelete []string
	var toClip []core.TimelineEntry
	if err := t.tx.AscendKeys(timelinePrefixPattern(host, key), func(k, v string) bool {
		var e core.TimelineEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			nlog.Errorf("storage: decode timeline entry: %v", err)
			return true
		}
		if e.IsRejection {
			return true
		}
		switch {
		case e.StartTimeUTC >= tStar:
			toDelete = append(toDelete, k)
		case e.EndTimeUTC > tStar:
			e.EndTimeUTC = tStar
			toClip = append(toClip, e)
			toDelete = append(toDelete, k)
		}
		return true
	}); err != nil {
		return dbErr(err)
	}
	for _, k := range toDelete {
		if _, err := t.tx.Delete(k); err != nil && !isNotFound(err) {
			return dbErr(err)
		}
	}
	return t.AddTimelineEntries(host, toClip)
}

// --- views ---------------------------------------------------------------

// collectVisible scans every timeline entry for host, keeping the one that
// makes each (offer, instant) visible to viewingOrg: a non-rejection entry
// targeting viewingOrg or WildcardOrg whose window contains t, with an
// explicit target preferred over a wildcard one for the same offer.
func (t *buntTxn) collectVisible(host, viewingOrg string, at int64) (map[core.Key]core.TimelineEntry, error) {
	visible := map[core.Key]core.TimelineEntry{}
	err := t.tx.AscendKeys(timelineAllPattern(host), func(_, v string) bool {
		var e core.TimelineEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			nlog.Errorf("storage: decode timeline entry: %v", err)
			return true
		}
		if e.IsRejection || e.IsReservation {
			return true
		}
		if e.TargetOrganizationUrl != viewingOrg && e.TargetOrganizationUrl != core.WildcardOrg {
			return true
		}
		if at < e.StartTimeUTC || at >= e.EndTimeUTC {
			return true
		}
		key := e.OfferKey()
		cur, ok := visible[key]
		if !ok || (cur.TargetOrganizationUrl == core.WildcardOrg && e.TargetOrganizationUrl != core.WildcardOrg) {
			visible[key] = e
		}
		return true
	})
	if err != nil {
		return nil, dbErr(err)
	}
	return visible, nil
}

func (t *buntTxn) viewOfferFor(host string, e core.TimelineEntry) (*ViewOffer, bool, error) {
	snap, ok, err := t.GetOffer(host, e.OfferKey(), &e.SnapshotUTC)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &ViewOffer{
		Snapshot:     *snap,
		ReshareChain: e.ReshareChain,
		IsWildcard:   e.TargetOrganizationUrl == core.WildcardOrg,
	}, true, nil
}

func (t *buntTxn) GetOffersAtTime(host, viewingOrg string, at int64, skip, limit int) (*Cursor[ViewOffer], error) {
	visible, err := t.collectVisible(host, viewingOrg, at)
	if err != nil {
		return nil, err
	}
	keys := make([]core.Key, 0, len(visible))
	for k := range visible {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PostingOrgUrl != keys[j].PostingOrgUrl {
			return keys[i].PostingOrgUrl < keys[j].PostingOrgUrl
		}
		return keys[i].OfferID < keys[j].OfferID
	})

	var out []ViewOffer
	for i, k := range keys {
		if i < skip {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		vo, ok, err := t.viewOfferFor(host, visible[k])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, *vo)
		}
	}
	return NewCursor(out), nil
}

func (t *buntTxn) GetOfferAtTime(host, viewingOrg string, key core.Key, at int64) (*ViewOffer, bool, error) {
	visible, err := t.collectVisible(host, viewingOrg, at)
	if err != nil {
		return nil, false, err
	}
	e, ok := visible[key]
	if !ok {
		return nil, false, nil
	}
	return t.viewOfferFor(host, e)
}

// --- acceptance / rejection / history --------------------------------------

func (t *buntTxn) WriteAccept(host string, acc core.Acceptance) error {
	b, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	key := core.Key{PostingOrgUrl: acc.PostingOrgUrl, OfferID: acc.OfferID}
	_, _, err = t.tx.Set(acceptKey(host, key, acc.AcceptedAtUTC, seq()), string(b), nil)
	return dbErr(err)
}

// WriteReject stores a rejection as a non-expiring TimelineEntry with
// IsRejection set: behavior identical to a standalone record. Storage
// never persists RejectionRecord as its own row.
func (t *buntTxn) WriteReject(host string, rej core.RejectionRecord) error {
	entry := core.TimelineEntry{
		HostOrgUrl:            host,
		PostingOrgUrl:         rej.PostingOrgUrl,
		OfferID:               rej.OfferID,
		TargetOrganizationUrl: rej.RejectingOrg,
		StartTimeUTC:          rej.RejectedAtUTC,
		EndTimeUTC:            cos.MaxSafeInteger,
		IsRejection:           true,
	}
	return t.AddTimelineEntries(host, []core.TimelineEntry{entry})
}

func (t *buntTxn) GetHistory(host, viewingOrg string, sinceUTC *int64, skip int) (*Cursor[core.Acceptance], error) {
	var out []core.Acceptance
	err := t.tx.AscendKeys(acceptAllPattern(host), func(_, v string) bool {
		var acc core.Acceptance
		if err := json.Unmarshal([]byte(v), &acc); err != nil {
			nlog.Errorf("storage: decode acceptance: %v", err)
			return true
		}
		if sinceUTC != nil && acc.AcceptedAtUTC < *sinceUTC {
			return true
		}
		visible := false
		for _, v := range acc.Viewers() {
			if v == viewingOrg {
				visible = true
				break
			}
		}
		if visible {
			out = append(out, acc)
		}
		return true
	})
	if err != nil {
		return nil, dbErr(err)
	}
	if skip > len(out) {
		skip = len(out)
	}
	return NewCursor(out[skip:]), nil
}

// --- producer metadata -----------------------------------------------------

func (t *buntTxn) WriteOfferProducerMetadata(host string, md core.ProducerMetadata) error {
	b, err := json.Marshal(md)
	if err != nil {
		return err
	}
	_, _, err = t.tx.Set(producerMDKey(host, md.OrganizationUrl), string(b), nil)
	return dbErr(err)
}

func (t *buntTxn) ListProducerIDs(host string) (*Cursor[string], error) {
	var out []string
	err := t.tx.AscendKeys(producerMDAllPattern(host), func(k, _ string) bool {
		parts := strings.Split(k, "|")
		out = append(out, parts[len(parts)-1])
		return true
	})
	if err != nil {
		return nil, dbErr(err)
	}
	sort.Strings(out)
	return NewCursor(out), nil
}

func (t *buntTxn) GetOfferProducerMetadata(host, producerID string) (*core.ProducerMetadata, bool, error) {
	v, err := t.tx.Get(producerMDKey(host, producerID))
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dbErr(err)
	}
	var md core.ProducerMetadata
	if err := json.Unmarshal([]byte(v), &md); err != nil {
		return nil, false, err
	}
	return &md, true, nil
}

// --- known offering orgs ---------------------------------------------------

func (t *buntTxn) TouchKnownOfferingOrg(host, orgURL string, seenAtUTC int64) error {
	org := core.KnownOfferingOrg{OrgUrl: orgURL, LastSeenAtUTC: seenAtUTC}
	b, err := json.Marshal(org)
	if err != nil {
		return err
	}
	_, _, err = t.tx.Set(knownOrgKey(host, orgURL), string(b), nil)
	return dbErr(err)
}

func (t *buntTxn) ListKnownOfferingOrgs(host string, sinceUTC int64) (*Cursor[core.KnownOfferingOrg], error) {
	var out []core.KnownOfferingOrg
	err := t.tx.AscendKeys(knownOrgAllPattern(host), func(_, v string) bool {
		var org core.KnownOfferingOrg
		if err := json.Unmarshal([]byte(v), &org); err != nil {
			nlog.Errorf("storage: decode known org: %v", err)
			return true
		}
		if org.LastSeenAtUTC >= sinceUTC {
			out = append(out, org)
		}
		return true
	})
	if err != nil {
		return nil, dbErr(err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrgUrl < out[j].OrgUrl })
	return NewCursor(out), nil
}
