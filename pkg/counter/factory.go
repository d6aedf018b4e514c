package counter

import (
	"time"

	"github.com/cuemby/tally/pkg/store"
	"github.com/cuemby/tally/pkg/tallyerr"
)

// FactoryConfig carries the inputs the counter factory needs beyond the
// backing-store manager: the writer's node identity (required for
// EventuallyConsistent and Accurate) and the idempotency-marker TTL.
type FactoryConfig struct {
	NodeID    string
	MarkerTTL time.Duration
}

// New builds the blocking Counter for one consistency level (C9).
// EventuallyConsistent resolves to the preferred hash-variant layout;
// construct NewEventualFlat directly for the legacy flat layout.
func New(consistency Consistency, m *store.Manager, cfg FactoryConfig) (Counter, error) {
	switch consistency {
	case ConsistencyBestEffort:
		return NewBestEffort(m, cfg.MarkerTTL), nil
	case ConsistencyEventual:
		if cfg.NodeID == "" {
			return nil, tallyerr.NewConfigError("counter: nodeId is required for eventually-consistent strategy")
		}
		return NewEventualHash(m, cfg.NodeID, cfg.MarkerTTL), nil
	case ConsistencyAccurate:
		if cfg.NodeID == "" {
			return nil, tallyerr.NewConfigError("counter: nodeId is required for accurate strategy")
		}
		return NewAccurate(m, cfg.NodeID, cfg.MarkerTTL), nil
	default:
		return nil, tallyerr.NewConfigError("counter: unsupported consistency " + string(consistency))
	}
}

// NewAsync builds the non-blocking AsyncCounter for one consistency
// level (C9).
func NewAsync(consistency Consistency, m *store.Manager, cfg FactoryConfig) (AsyncCounter, error) {
	switch consistency {
	case ConsistencyBestEffort:
		return NewBestEffort(m, cfg.MarkerTTL), nil
	case ConsistencyEventual:
		if cfg.NodeID == "" {
			return nil, tallyerr.NewConfigError("counter: nodeId is required for eventually-consistent strategy")
		}
		return NewEventualHash(m, cfg.NodeID, cfg.MarkerTTL), nil
	case ConsistencyAccurate:
		if cfg.NodeID == "" {
			return nil, tallyerr.NewConfigError("counter: nodeId is required for accurate strategy")
		}
		return NewAccurate(m, cfg.NodeID, cfg.MarkerTTL), nil
	default:
		return nil, tallyerr.NewConfigError("counter: unsupported consistency " + string(consistency))
	}
}
