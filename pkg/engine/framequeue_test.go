package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"mediaengine/pkg/codecfacade"
)

type fakeFrameRef struct{ released bool }

func (f *fakeFrameRef) IsVideo() bool                            { return true }
func (f *fakeFrameRef) Width() int                               { return 0 }
func (f *fakeFrameRef) Height() int                              { return 0 }
func (f *fakeFrameRef) PixelFormat() int32                       { return 0 }
func (f *fakeFrameRef) SampleAspectRatio() codecfacade.Rational  { return codecfacade.Rational{} }
func (f *fakeFrameRef) NumSamples() int                          { return 0 }
func (f *fakeFrameRef) SampleRate() int                          { return 0 }
func (f *fakeFrameRef) Channels() int                            { return 2 }
func (f *fakeFrameRef) SampleFormat() int32                      { return 0 }
func (f *fakeFrameRef) PktDTS() int64                            { return 0 }
func (f *fakeFrameRef) BestEffortTimestamp() int64               { return 0 }
func (f *fakeFrameRef) Release()                                 { f.released = true }

func newTestPacketQueue() *PacketQueue {
	return NewPacketQueue(atomic.NewBool(false))
}

func TestFrameQueue_WriteReadCycle(t *testing.T) {
	abort := atomic.NewBool(false)
	q := NewFrameQueue(4, false, abort, newTestPacketQueue())

	slot, ok := q.PeekWritable()
	require.True(t, ok)
	slot.PTS = 1.5
	q.CommitWrite()

	assert.Equal(t, 1, q.Remaining())

	frame, ok := q.PeekReadable()
	require.True(t, ok)
	assert.Equal(t, 1.5, frame.PTS)

	q.AdvanceRead()
	assert.Equal(t, 0, q.Remaining())
}

func TestFrameQueue_KeepLastTwoPhaseAdvance(t *testing.T) {
	abort := atomic.NewBool(false)
	q := NewFrameQueue(4, true, abort, newTestPacketQueue())

	ref := &fakeFrameRef{}
	slot, ok := q.PeekWritable()
	require.True(t, ok)
	slot.PTS = 3.0
	slot.Ref = ref
	q.CommitWrite()

	// First advance only flips read_index_shown; the frame must still be
	// valid to display via PeekLast.
	q.AdvanceRead()
	last := q.PeekLast()
	assert.Equal(t, 3.0, last.PTS)
	assert.False(t, ref.released)
	assert.Equal(t, 0, q.Remaining())

	// Second advance actually releases and moves read_index.
	q.AdvanceRead()
	assert.True(t, ref.released)
}

func TestFrameQueue_TryPeekReadableNonBlocking(t *testing.T) {
	abort := atomic.NewBool(false)
	q := NewFrameQueue(4, false, abort, newTestPacketQueue())

	_, ok := q.TryPeekReadable()
	assert.False(t, ok)

	slot, writable := q.PeekWritable()
	require.True(t, writable)
	slot.PTS = 9.0
	q.CommitWrite()

	frame, ok := q.TryPeekReadable()
	require.True(t, ok)
	assert.Equal(t, 9.0, frame.PTS)
}

func TestFrameQueue_PeekWritableBlocksAtCapacity(t *testing.T) {
	abort := atomic.NewBool(false)
	q := NewFrameQueue(1, false, abort, newTestPacketQueue())

	slot, ok := q.PeekWritable()
	require.True(t, ok)
	slot.PTS = 1
	q.CommitWrite()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.PeekWritable()
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("PeekWritable returned before a slot freed up")
	case <-time.After(50 * time.Millisecond):
	}

	abort.Store(true)
	q.Wake()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("PeekWritable did not unblock after abort")
	}
}
