// ./internal/state/recorder.go
package state

import (
	"github.com/rs/zerolog/log"

	"github.com/dapp-network/staking-engine/internal/types"
)

// DBRecorder adapts the persistence layer to the engine's Recorder hook.
// Persistence failures are logged, never propagated: a lost receipt must not
// fail the ledger operation that produced it.
type DBRecorder struct{}

func (DBRecorder) RecordEvent(ev types.Event) {
	if err := SaveOperationReceipt(ev); err != nil {
		log.Error().Err(err).Str("op", ev.OpID).Msg("Failed to persist operation receipt")
	}
}

func (DBRecorder) RecordReserves(snap types.ReserveSnapshot) {
	if err := SaveReserveSnapshot(snap); err != nil {
		log.Error().Err(err).Msg("Failed to persist reserve snapshot")
	}
}
