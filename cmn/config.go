package cmn

import (
	"sync/atomic"
	"time"
)

// Config holds process-wide ambient settings. Per-host (multi-tenant)
// behavior — which ListingPolicy a host uses, which producers it
// registers — is passed explicitly to each model.OfferModel instance
// rather than threaded through this singleton; GCO only covers settings
// that are genuinely process-global (default backoff, verbosity, archive
// toggles).
type Config struct {
	// Verbosity maps a cos.Smodule* tag to a verbosity level; FastV checks
	// against it.
	Verbosity map[string]int

	// DefaultProducerBackoff is applied when a producer round fails and the
	// producer did not supply its own backoff policy.
	DefaultProducerBackoff time.Duration

	// EnableInternalChecks gates the timeline-overlap / single-reservation
	// checks. It is independent of cmn/debug.COMPILED, which gates general
	// assertions.
	EnableInternalChecks bool

	// ArchiveEnabled is not consulted by the GC pass: snapshots are
	// exported to storage/archive whenever model.OfferModel.Archiver is set.
	ArchiveEnabled bool
}

func DefaultConfig() *Config {
	return &Config{
		Verbosity:              map[string]int{},
		DefaultProducerBackoff: 10 * time.Second,
		EnableInternalChecks:   true,
		ArchiveEnabled:         false,
	}
}

// gco is the Global Config Owner: an atomically swappable *Config pointer.
type gco struct {
	ptr atomic.Value
}

func newGCO() *gco {
	g := &gco{}
	g.ptr.Store(DefaultConfig())
	return g
}

func (g *gco) Get() *Config { return g.ptr.Load().(*Config) }

func (g *gco) Put(c *Config) { g.ptr.Store(c) }

// GCO is the process-wide config owner, read by every package via
// cmn.GCO.Get().
var GCO = newGCO()

// Rom ("read-only mirror") gates verbosity-keyed log lines via
// Rom.FastV(level, module).
type rom struct{}

func (rom) FastV(level int, module string) bool {
	return GCO.Get().Verbosity[module] >= level
}

var Rom rom
