package cmd

import (
	"fmt"

	"github.com/mhalvorsen/sockpool/internal/config"
	"github.com/mhalvorsen/sockpool/internal/identity"
	"github.com/mhalvorsen/sockpool/internal/ledger"
	"github.com/mhalvorsen/sockpool/internal/memory"
	"github.com/mhalvorsen/sockpool/internal/store"
)

// backends bundles the durable stores opened from one config.
type backends struct {
	store  store.Store
	ledger ledger.Ledger
	memory memory.Memory
}

func (b *backends) close() {
	if b.memory != nil {
		_ = b.memory.Close()
	}
	if b.ledger != nil {
		_ = b.ledger.Close()
	}
	if b.store != nil {
		_ = b.store.Close()
	}
}

// openBackends constructs the account store, action ledger, and memory store
// selected by store_type.
func openBackends(cfg *config.Config) (*backends, error) {
	b := &backends{}
	var err error

	switch cfg.StoreType {
	case "file":
		b.store, err = store.NewFileStore(cfg.DataDir)
		if err == nil {
			b.ledger, err = ledger.NewFileLedger(cfg.DataDir)
		}
		if err == nil {
			b.memory, err = memory.NewFileMemory(cfg.DataDir)
		}
	case "sql":
		b.store, err = store.NewSQLStore(cfg.StoreDSN)
		if err == nil {
			b.ledger, err = ledger.NewSQLLedger(cfg.StoreDSN)
		}
		if err == nil {
			b.memory, err = memory.NewSQLMemory(cfg.StoreDSN)
		}
	default:
		// Prevented by config validation.
		err = fmt.Errorf("invalid store_type %q", cfg.StoreType)
	}

	if err != nil {
		b.close()
		return nil, err
	}
	return b, nil
}

// newRotator constructs the identity rotator selected by rotator_type.
func newRotator(cfg *config.Config) identity.Rotator {
	if cfg.RotatorType == "tor" && !cfg.DryRun {
		return identity.NewTorRotator(cfg.TorControlAddr, cfg.TorControlPassword, cfg.RotateSettleDelay)
	}
	return identity.NewNoopRotator()
}
