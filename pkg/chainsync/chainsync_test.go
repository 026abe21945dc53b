package chainsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Liqwid-Labs/hydrant/pkg/model"
)

// fakeSession replays a scripted sequence of NextResponses, tracking
// FindIntersect/IntersectOrigin calls so tests can assert the intersection
// strategy New picks.
type fakeSession struct {
	responses         []NextResponse
	pos               int
	agency            bool
	intersectedOrigin bool
	intersectedAt     []model.Point
}

func (s *fakeSession) HasAgency() bool { return s.agency }

func (s *fakeSession) RequestNext(context.Context) (NextResponse, error) {
	return s.next()
}

func (s *fakeSession) RecvWhileMustReply(context.Context) (NextResponse, error) {
	return s.next()
}

func (s *fakeSession) next() (NextResponse, error) {
	if s.pos >= len(s.responses) {
		return NextResponse{Kind: NextAwait}, nil
	}
	r := s.responses[s.pos]
	s.pos++
	return r, nil
}

func (s *fakeSession) FindIntersect(_ context.Context, points []model.Point) error {
	s.intersectedAt = points
	return nil
}

func (s *fakeSession) IntersectOrigin(context.Context) error {
	s.intersectedOrigin = true
	return nil
}

// fakeHeaderDecoder decodes a 1-byte "header" directly into a deterministic
// point, sidestepping any real CBOR concern.
type fakeHeaderDecoder struct{}

func (fakeHeaderDecoder) DecodeHeaderPoint(cbor []byte) (model.Point, error) {
	return model.NewPoint(uint64(cbor[0]), model.BlockHash{cbor[0]}), nil
}

type fetchCall struct {
	start, end model.Point
}

type fakeBlockFetch struct {
	calls []fetchCall
	reply func(start, end model.Point) [][]byte
}

func (f *fakeBlockFetch) FetchRange(_ context.Context, start, end model.Point) ([][]byte, error) {
	f.calls = append(f.calls, fetchCall{start, end})
	return f.reply(start, end), nil
}

func headerResponse(slot byte, tipSlot byte) NextResponse {
	return NextResponse{
		Kind:       NextRollForward,
		HeaderCBOR: []byte{slot},
		Tip:        Tip{Point: model.NewPoint(uint64(tipSlot), model.BlockHash{tipSlot})},
	}
}

func oneBlockPerPoint(start, end model.Point) [][]byte {
	n := int(end.Slot-start.Slot) + 1
	blocks := make([][]byte, n)
	for i := range blocks {
		blocks[i] = []byte{byte(int(start.Slot) + i)}
	}
	return blocks
}

func TestNewRequestsIntersectionFromNonOriginTip(t *testing.T) {
	session := &fakeSession{}
	events := make(chan SyncEvent, 10)
	tip := model.NewPoint(50, model.BlockHash{0x05})

	_, err := New(context.Background(), session, &fakeBlockFetch{}, fakeHeaderDecoder{}, tip, events)
	require.NoError(t, err)
	assert.False(t, session.intersectedOrigin)
	assert.Equal(t, []model.Point{tip}, session.intersectedAt)
}

func TestNewIntersectsOriginWhenTipIsOrigin(t *testing.T) {
	session := &fakeSession{}
	events := make(chan SyncEvent, 10)

	_, err := New(context.Background(), session, &fakeBlockFetch{}, fakeHeaderDecoder{}, model.OriginPoint(), events)
	require.NoError(t, err)
	assert.True(t, session.intersectedOrigin)
}

func TestFlushTriggersWhenBatchFillsBuffer(t *testing.T) {
	responses := make([]NextResponse, 0, blockfetchConcurrency+1)
	for i := 0; i < blockfetchConcurrency; i++ {
		responses = append(responses, headerResponse(byte(i), byte(blockfetchConcurrency+50)))
	}
	session := &fakeSession{responses: responses, agency: true}
	fetch := &fakeBlockFetch{reply: oneBlockPerPoint}
	events := make(chan SyncEvent, blockfetchConcurrency)

	pipeline, err := New(context.Background(), session, fetch, fakeHeaderDecoder{}, model.OriginPoint(), events)
	require.NoError(t, err)

	for i := 0; i < blockfetchConcurrency; i++ {
		_, err := pipeline.Next(context.Background())
		require.NoError(t, err)
	}

	assert.Len(t, fetch.calls, 1, "a full batch should flush exactly once")
	assert.Len(t, events, blockfetchConcurrency)
}

func TestFlushTriggersWhenHeaderReachesPeerTip(t *testing.T) {
	session := &fakeSession{
		responses: []NextResponse{headerResponse(7, 7)},
		agency:    true,
	}
	fetch := &fakeBlockFetch{reply: oneBlockPerPoint}
	events := make(chan SyncEvent, 10)

	pipeline, err := New(context.Background(), session, fetch, fakeHeaderDecoder{}, model.OriginPoint(), events)
	require.NoError(t, err)

	_, err = pipeline.Next(context.Background())
	require.NoError(t, err)

	assert.Len(t, fetch.calls, 1, "reaching the reported tip should flush even a partial batch")
	assert.Len(t, events, 1)
}

func TestFlushTriggersOnAwait(t *testing.T) {
	session := &fakeSession{
		responses: []NextResponse{headerResponse(3, 99)},
		agency:    true,
	}
	fetch := &fakeBlockFetch{reply: oneBlockPerPoint}
	events := make(chan SyncEvent, 10)

	pipeline, err := New(context.Background(), session, fetch, fakeHeaderDecoder{}, model.OriginPoint(), events)
	require.NoError(t, err)

	_, err = pipeline.Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fetch.calls, "a single header below tip and below batch size should not flush yet")

	next, err := pipeline.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NextAwait, next.Kind)
	assert.Len(t, fetch.calls, 1, "an Await response must flush whatever is pending")
}

func TestFlushTriggersOnRollBackwardAndEmitsRollBackwardEvent(t *testing.T) {
	rollbackPoint := model.NewPoint(1, model.BlockHash{0x01})
	session := &fakeSession{
		responses: []NextResponse{
			headerResponse(3, 99),
			{Kind: NextRollBackward, Point: rollbackPoint},
		},
		agency: true,
	}
	fetch := &fakeBlockFetch{reply: oneBlockPerPoint}
	events := make(chan SyncEvent, 10)

	pipeline, err := New(context.Background(), session, fetch, fakeHeaderDecoder{}, model.OriginPoint(), events)
	require.NoError(t, err)

	_, err = pipeline.Next(context.Background())
	require.NoError(t, err)
	_, err = pipeline.Next(context.Background())
	require.NoError(t, err)

	require.Len(t, fetch.calls, 1)
	require.Len(t, events, 2)
	first := <-events
	assert.Equal(t, EventRollForward, first.Kind)
	second := <-events
	assert.Equal(t, EventRollBackward, second.Kind)
	assert.Equal(t, rollbackPoint, second.Point)
}

func TestFlushLengthMismatchIsFatal(t *testing.T) {
	session := &fakeSession{
		responses: []NextResponse{headerResponse(3, 3)},
		agency:    true,
	}
	fetch := &fakeBlockFetch{reply: func(start, end model.Point) [][]byte {
		return [][]byte{{1}, {2}}
	}}
	events := make(chan SyncEvent, 10)

	pipeline, err := New(context.Background(), session, fetch, fakeHeaderDecoder{}, model.OriginPoint(), events)
	require.NoError(t, err)

	_, err = pipeline.Next(context.Background())
	assert.Error(t, err, "fetching a different block count than requested must be fatal")
}

func TestRunUntilSyncedStopsAtFirstAwait(t *testing.T) {
	session := &fakeSession{
		responses: []NextResponse{headerResponse(1, 99), headerResponse(2, 99)},
		agency:    true,
	}
	fetch := &fakeBlockFetch{reply: oneBlockPerPoint}
	events := make(chan SyncEvent, 10)

	pipeline, err := New(context.Background(), session, fetch, fakeHeaderDecoder{}, model.OriginPoint(), events)
	require.NoError(t, err)

	require.NoError(t, pipeline.RunUntilSynced(context.Background()))
	assert.Len(t, fetch.calls, 1, "the trailing Await should flush the remaining pending headers")
}
