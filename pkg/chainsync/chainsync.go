// Package chainsync drives the chain-sync/block-fetch handshake against a
// remote node and emits SyncEvents for the writer to apply. The wire
// protocol itself — encoding, framing, the actual network connection — is
// out of scope here; it is expressed as small interfaces an embedding
// binary implements against its protocol client of choice.
package chainsync

import (
	"context"
	"fmt"
	"time"

	"github.com/Liqwid-Labs/hydrant/pkg/log"
	"github.com/Liqwid-Labs/hydrant/pkg/metrics"
	"github.com/Liqwid-Labs/hydrant/pkg/model"
)

// blockfetchConcurrency bounds how many header points accumulate before a
// ranged block-fetch is issued, matching the original engine's window.
const blockfetchConcurrency = 200

// awaitPollInterval is how long Run sleeps after an Await response before
// asking the peer for the next message again.
const awaitPollInterval = 10 * time.Millisecond

// Tip is the remote chain tip as reported alongside a chain-sync response.
type Tip struct {
	Point       model.Point
	BlockNumber uint64
}

// NextResponseKind discriminates the three shapes a chain-sync "next
// message" response can take.
type NextResponseKind int

const (
	NextRollForward NextResponseKind = iota
	NextRollBackward
	NextAwait
)

// NextResponse is the decoded reply to a chain-sync next-message request.
type NextResponse struct {
	Kind NextResponseKind

	// Populated when Kind == NextRollForward.
	HeaderCBOR []byte
	Tip        Tip

	// Populated when Kind == NextRollBackward.
	Point model.Point
}

// ChainSyncSession is implemented by the embedding binary's chain-sync
// protocol client.
type ChainSyncSession interface {
	HasAgency() bool
	RequestNext(ctx context.Context) (NextResponse, error)
	RecvWhileMustReply(ctx context.Context) (NextResponse, error)
	FindIntersect(ctx context.Context, points []model.Point) error
	IntersectOrigin(ctx context.Context) error
}

// BlockFetchSession is implemented by the embedding binary's block-fetch
// protocol client.
type BlockFetchSession interface {
	// FetchRange returns the CBOR bytes of every block in [start, end],
	// inclusive, in chain order.
	FetchRange(ctx context.Context, start, end model.Point) ([][]byte, error)
}

// HeaderDecoder is implemented by the embedding binary's CBOR decoder.
// Decoding a multi-era header into a point is as much a consensus-format
// concern as decoding a block, so it is delegated the same way.
type HeaderDecoder interface {
	DecodeHeaderPoint(cbor []byte) (model.Point, error)
}

// BlockDecoder is implemented by the embedding binary's CBOR decoder. It
// turns the raw bytes a block-fetch returns into the RawBlock view the
// chain database needs; concrete multi-era block decoding is out of scope
// for this module.
type BlockDecoder interface {
	DecodeBlock(cbor []byte) (model.RawBlock, error)
}

// SyncEventKind discriminates the event the pipeline hands to the writer.
type SyncEventKind int

const (
	EventRollForward SyncEventKind = iota
	EventRollBackward
)

// SyncEvent is a unit of work the writer applies to the chain database.
type SyncEvent struct {
	Kind SyncEventKind

	BlockCBOR []byte // populated when Kind == EventRollForward
	Tip       Tip    // populated when Kind == EventRollForward

	Point model.Point // populated when Kind == EventRollBackward
}

type pendingFetch struct {
	point model.Point
	tip   Tip
}

// Pipeline batches header points from the chain-sync session into ranged
// block-fetch requests and emits a SyncEvent per resulting block (or
// rollback) onto events. events is expected to be the writer's bounded
// input channel; Pipeline never closes it.
type Pipeline struct {
	session    ChainSyncSession
	blockFetch BlockFetchSession
	headers    HeaderDecoder
	events     chan<- SyncEvent

	pending []pendingFetch
}

// New starts a chain-sync session from tip: requesting an intersection at
// a specific point, or starting from the origin if the database is empty.
func New(ctx context.Context, session ChainSyncSession, blockFetch BlockFetchSession, headers HeaderDecoder, tip model.Point, events chan<- SyncEvent) (*Pipeline, error) {
	if tip.Origin {
		log.WithComponent("chainsync").Info().Msg("no tip, starting from origin")
		if err := session.IntersectOrigin(ctx); err != nil {
			return nil, fmt.Errorf("chainsync: starting from origin: %w", err)
		}
	} else {
		log.WithSlot(tip.Slot).Info().Str("component", "chainsync").Msg("requesting intersection")
		if err := session.FindIntersect(ctx, []model.Point{tip}); err != nil {
			return nil, fmt.Errorf("chainsync: requesting intersection: %w", err)
		}
	}

	return &Pipeline{
		session:    session,
		blockFetch: blockFetch,
		headers:    headers,
		events:     events,
	}, nil
}

// Next requests (or awaits, depending on agency) the next chain-sync
// message, batching RollForward header points and flushing them into a
// ranged block-fetch request when the batch fills, the peer reports we've
// reached its tip, a rollback arrives, or the peer signals Await.
func (p *Pipeline) Next(ctx context.Context) (NextResponse, error) {
	var next NextResponse
	var err error
	if p.session.HasAgency() {
		next, err = p.session.RequestNext(ctx)
	} else {
		next, err = p.session.RecvWhileMustReply(ctx)
	}
	if err != nil {
		return NextResponse{}, fmt.Errorf("chainsync: requesting next message: %w", err)
	}

	switch next.Kind {
	case NextRollForward:
		point, err := p.headers.DecodeHeaderPoint(next.HeaderCBOR)
		if err != nil {
			return NextResponse{}, fmt.Errorf("chainsync: decoding header: %w", err)
		}
		isAtTip := !point.Origin && point.Slot == next.Tip.Point.Slot && point.Hash == next.Tip.Point.Hash

		p.pending = append(p.pending, pendingFetch{point: point, tip: next.Tip})
		metrics.PendingFetchesDepth.Set(float64(len(p.pending)))
		if len(p.pending) >= blockfetchConcurrency || isAtTip {
			if err := p.flushPendingFetches(ctx); err != nil {
				return NextResponse{}, err
			}
		}
	case NextRollBackward:
		if err := p.flushPendingFetches(ctx); err != nil {
			return NextResponse{}, err
		}
		select {
		case p.events <- SyncEvent{Kind: EventRollBackward, Point: next.Point}:
		case <-ctx.Done():
			return NextResponse{}, ctx.Err()
		}
	case NextAwait:
		if err := p.flushPendingFetches(ctx); err != nil {
			return NextResponse{}, err
		}
	}

	return next, nil
}

// Run drives the pipeline until ctx is cancelled or an error occurs,
// sleeping briefly after each Await so it does not spin against a peer
// that has nothing new to report.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		next, err := p.Next(ctx)
		if err != nil {
			return err
		}
		if next.Kind == NextAwait {
			select {
			case <-time.After(awaitPollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// RunUntilSynced drives the pipeline until the peer reports it has nothing
// further to send (the first Await), then returns.
func (p *Pipeline) RunUntilSynced(ctx context.Context) error {
	for {
		next, err := p.Next(ctx)
		if err != nil {
			return err
		}
		if next.Kind == NextAwait {
			return nil
		}
	}
}

// flushPendingFetches issues a single ranged block-fetch for the buffered
// header points and emits one RollForward SyncEvent per returned block, in
// order. A fetch returning a different number of blocks than points
// requested is treated as a fatal data-integrity error: the peer and the
// local chain-sync state have diverged in a way this engine cannot safely
// paper over.
func (p *Pipeline) flushPendingFetches(ctx context.Context) error {
	if len(p.pending) == 0 {
		return nil
	}
	start := p.pending[0].point
	last := p.pending[len(p.pending)-1]

	blocks, err := p.blockFetch.FetchRange(ctx, start, last.point)
	if err != nil {
		return fmt.Errorf("chainsync: fetching block range: %w", err)
	}
	if len(blocks) != len(p.pending) {
		return fmt.Errorf("chainsync: fetched %d blocks, expected %d", len(blocks), len(p.pending))
	}
	metrics.BlockFetchBatchSize.Observe(float64(len(blocks)))

	for _, block := range blocks {
		select {
		case p.events <- SyncEvent{Kind: EventRollForward, BlockCBOR: block, Tip: last.tip}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.pending = p.pending[:0]
	metrics.PendingFetchesDepth.Set(0)
	return nil
}
