package producer

import "time"

// BackoffPolicy decides how long to wait before retrying producerID after
// a failed round. Policy is pluggable per producer; a Loop without one
// uses cmn.Config.DefaultProducerBackoff, or DefaultBackoff when that is
// zero.
type BackoffPolicy interface {
	Backoff(producerID string) time.Duration
}

// FixedBackoff always returns the same duration. DefaultBackoff is the
// fixed 10 000 ms default.
type FixedBackoff time.Duration

const DefaultBackoff = FixedBackoff(10 * time.Second)

func (d FixedBackoff) Backoff(string) time.Duration { return time.Duration(d) }
