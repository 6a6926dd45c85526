package events

import (
	"github.com/rs/zerolog"

	"github.com/onflow/pos-sync/model/flow"
	"github.com/onflow/pos-sync/state/protocol"
)

// Logger logs chain events.
type Logger struct {
	log zerolog.Logger
}

var _ protocol.Consumer = (*Logger)(nil)

func NewLogger(log zerolog.Logger) *Logger {
	return &Logger{log: log.With().Str("component", "chain_events").Logger()}
}

func (l *Logger) BlockExtended(block *flow.Block) {
	l.log.Debug().
		Uint32("number", block.Number()).
		Uint32("view", block.View()).
		Hex("block_id", logID(block)).
		Msg("chain extended")
}

func (l *Logger) BlockFinalized(block *flow.Block) {
	l.log.Info().
		Uint32("number", block.Number()).
		Uint32("batch", flow.BatchAt(block.Number())).
		Hex("block_id", logID(block)).
		Msg("macro block finalized")
}

func (l *Logger) Rebranched(reverted []*flow.Block, adopted []*flow.Block) {
	l.log.Info().
		Int("reverted", len(reverted)).
		Int("adopted", len(adopted)).
		Msg("chain rebranched")
}

func logID(block *flow.Block) []byte {
	id := block.ID()
	return id[:]
}
