// Package writer runs the single consumer task that drains SyncEvents from
// the chain-sync pipeline and applies them to the chain database. It is
// the only component permitted to call Db's mutating methods, which is
// what keeps the database's single-writer invariant trivially true.
package writer

import (
	"context"
	"fmt"

	"github.com/Liqwid-Labs/hydrant/pkg/chain"
	"github.com/Liqwid-Labs/hydrant/pkg/chainsync"
	"github.com/Liqwid-Labs/hydrant/pkg/log"
	"github.com/Liqwid-Labs/hydrant/pkg/metrics"
)

// BufferSize is the writer's bounded channel capacity. The chain-sync
// pipeline blocks once this many events are unconsumed, which is the
// mechanism that keeps a slow writer from letting an unbounded amount of
// chain state pile up in memory.
const BufferSize = 5000

// persistEveryNBlocks bounds how much unsynced work a crash can lose when
// the writer is far behind tip and not yet triggering the "near tip"
// persist cadence below.
const persistEveryNBlocks = 10000

// nearTipSlots is how close (in slots) the writer must be to the remote
// tip before every block triggers a trim+persist instead of only every
// persistEveryNBlocks blocks.
const nearTipSlots = 1000

// Writer drains events from a bounded channel and applies them to the
// chain database, periodically trimming the volatile window and
// persisting to durable storage.
type Writer struct {
	db      *chain.Db
	decoder chainsync.BlockDecoder

	events chan chainsync.SyncEvent
	done   chan struct{}
}

// New constructs a Writer bound to db, decoding incoming block CBOR with
// decoder.
func New(db *chain.Db, decoder chainsync.BlockDecoder) *Writer {
	return &Writer{
		db:      db,
		decoder: decoder,
		events:  make(chan chainsync.SyncEvent, BufferSize),
		done:    make(chan struct{}),
	}
}

// Events returns the channel the chain-sync pipeline should send to.
func (w *Writer) Events() chan<- chainsync.SyncEvent { return w.events }

// Run drains events until ctx is cancelled or the events channel is
// closed, applying each one to the chain database in order. On
// cancellation it drains whatever is already buffered before returning, so
// a graceful shutdown (cancel, then wait for Run to return) never drops
// work the pipeline already handed off.
func (w *Writer) Run(ctx context.Context) error {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.events:
			if !ok {
				return nil
			}
			if err := w.apply(event); err != nil {
				return err
			}
		case <-ctx.Done():
			return w.drain()
		}
	}
}

func (w *Writer) drain() error {
	for {
		select {
		case event, ok := <-w.events:
			if !ok {
				return nil
			}
			if err := w.apply(event); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (w *Writer) apply(event chainsync.SyncEvent) error {
	bufferUsage := float64(len(w.events)) / float64(BufferSize)
	metrics.WriterQueueDepth.Set(float64(len(w.events)))
	metrics.WriterBufferUsageRatio.Set(bufferUsage)

	switch event.Kind {
	case chainsync.EventRollForward:
		return w.applyRollForward(event, bufferUsage)
	case chainsync.EventRollBackward:
		return w.applyRollBackward(event)
	default:
		return fmt.Errorf("writer: unknown event kind %d", event.Kind)
	}
}

func (w *Writer) applyRollForward(event chainsync.SyncEvent, bufferUsage float64) error {
	block, err := w.decoder.DecodeBlock(event.BlockCBOR)
	if err != nil {
		return fmt.Errorf("writer: decoding block: %w", err)
	}
	if err := w.db.RollForward(block); err != nil {
		return fmt.Errorf("writer: roll_forward: %w", err)
	}

	tipSlot := event.Tip.Point.Slot
	nearTip := tipSlot < block.Slot()+nearTipSlots
	atCadence := block.Number()%persistEveryNBlocks == 0
	if nearTip || atCadence {
		if err := w.db.TrimVolatile(); err != nil {
			return fmt.Errorf("writer: trim_volatile: %w", err)
		}
		if err := w.db.Persist(); err != nil {
			return fmt.Errorf("writer: persist: %w", err)
		}

		syncProgress := float64(0)
		if tipSlot > 0 {
			syncProgress = float64(block.Slot()) / float64(tipSlot) * 100
		}
		metrics.TipSlot.Set(float64(tipSlot))
		metrics.SlotsBehindTip.Set(float64(tipSlot) - float64(block.Slot()))

		log.WithSlot(block.Slot()).Info().
			Str("component", "writer").
			Uint64("block", block.Number()).
			Float64("sync_progress_pct", syncProgress).
			Float64("buffer_usage_pct", bufferUsage*100).
			Msg("roll_forward")
	}
	return nil
}

func (w *Writer) applyRollBackward(event chainsync.SyncEvent) error {
	if err := w.db.RollBackward(event.Point); err != nil {
		return fmt.Errorf("writer: roll_backward: %w", err)
	}
	log.WithSlot(event.Point.Slot).Info().
		Str("component", "writer").
		Bool("origin", event.Point.Origin).
		Msg("roll_backward")
	return nil
}

// Done is closed once Run has returned, after draining any events already
// in the channel.
func (w *Writer) Done() <-chan struct{} { return w.done }
