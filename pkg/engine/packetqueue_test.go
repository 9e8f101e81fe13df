package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type fakePacketRef struct {
	data     []byte
	released bool
}

func (f *fakePacketRef) Bytes() []byte { return f.data }
func (f *fakePacketRef) Release()      { f.released = true }

func TestPacketQueue_PushPopConservesSize(t *testing.T) {
	q := NewPacketQueue(atomic.NewBool(false))

	pkts := []*Packet{
		{Kind: PacketData, Duration: 10, Ref: &fakePacketRef{data: make([]byte, 100)}},
		{Kind: PacketData, Duration: 20, Ref: &fakePacketRef{data: make([]byte, 200)}},
	}
	var pushedSize int
	for _, p := range pkts {
		pushedSize += p.Size()
		q.Push(p)
	}
	assert.Equal(t, pushedSize, q.Size())
	assert.EqualValues(t, 2, q.NbPackets())

	var poppedSize int
	for i := 0; i < 2; i++ {
		p, ok := q.TryPop()
		require.True(t, ok)
		poppedSize += p.Size()
	}
	assert.Equal(t, pushedSize, poppedSize)
	assert.Equal(t, 0, q.Size())
	assert.EqualValues(t, 0, q.NbPackets())
}

func TestPacketQueue_SerialIncrementsOnlyOnFlush(t *testing.T) {
	q := NewPacketQueue(atomic.NewBool(false))
	q.Push(&Packet{Kind: PacketData})
	q.Push(&Packet{Kind: PacketData})
	assert.EqualValues(t, 0, q.Serial())

	q.PushFlush()
	assert.EqualValues(t, 1, q.Serial())

	q.Push(&Packet{Kind: PacketData})
	assert.EqualValues(t, 1, q.Serial())

	q.PushFlush()
	q.PushFlush()
	assert.EqualValues(t, 3, q.Serial())
}

func TestPacketQueue_FlushReleasesPayloadsWithoutChangingSerial(t *testing.T) {
	q := NewPacketQueue(atomic.NewBool(false))
	q.PushFlush()
	ref := &fakePacketRef{data: make([]byte, 10)}
	q.Push(&Packet{Kind: PacketData, Ref: ref})

	serialBefore := q.Serial()
	q.Flush()

	assert.True(t, ref.released)
	assert.Equal(t, serialBefore, q.Serial())
	assert.Equal(t, 0, q.Size())
	assert.EqualValues(t, 0, q.NbPackets())
}

func TestPacketQueue_PopBlocksUntilAbort(t *testing.T) {
	abort := atomic.NewBool(false)
	q := NewPacketQueue(abort)

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	abort.Store(true)
	q.Wake()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after abort")
	}
}
