package engine

import (
	"container/list"
	"sync"

	"go.uber.org/atomic"
)

// PacketQueue is a bounded, serial-tagged FIFO of Packets shared between the
// reader (single producer) and one decoder (single consumer). Every field is
// only mutated under mu; packetCount is additionally kept in an atomic for
// lock-free, best-effort reads (authoritative value is still the one under
// the lock, per the concurrency model).
type PacketQueue struct {
	mu       sync.Mutex
	added    *sync.Cond
	free     *sync.Cond
	items    list.List
	size     int
	duration int64
	serial   int64
	abort    *atomic.Bool

	packetCount atomic.Int64
}

// NewPacketQueue creates an empty queue. abort is shared with the owning
// ReaderContext/DecoderContext so Stop() on either side unblocks every
// waiter.
func NewPacketQueue(abort *atomic.Bool) *PacketQueue {
	q := &PacketQueue{abort: abort}
	q.added = sync.NewCond(&q.mu)
	q.free = sync.NewCond(&q.mu)
	return q
}

// Push enqueues pkt, tagging it with the current serial unless pkt is a
// flush sentinel, in which case the serial is incremented first and the new
// value is used for the tag (§4.1).
func (q *PacketQueue) Push(pkt *Packet) {
	q.mu.Lock()
	if pkt.Kind == PacketFlush {
		q.serial++
	}
	pkt.Serial = q.serial
	q.items.PushBack(pkt)
	q.size += pkt.Size()
	q.duration += pkt.Duration
	q.packetCount.Add(1)
	q.added.Broadcast()
	q.mu.Unlock()
}

// PushNull synthesises and pushes an end-of-stream sentinel for streamIndex.
func (q *PacketQueue) PushNull(streamIndex int) {
	q.mu.Lock()
	serial := q.serial
	q.mu.Unlock()
	q.Push(newNullPacket(streamIndex, serial))
}

// PushFlush synthesises and pushes a flush sentinel, bumping the serial.
func (q *PacketQueue) PushFlush() {
	q.Push(newFlushPacket(0))
}

// Start pushes an initial flush packet so the first consumer iteration is
// forced through its reset path before any real data arrives (§4.1).
func (q *PacketQueue) Start() {
	q.PushFlush()
}

// Pop blocks until a packet is available or the queue is aborted, returning
// (nil, false) in the latter case.
func (q *PacketQueue) Pop() (*Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 {
		if q.abort.Load() {
			return nil, false
		}
		q.added.Wait()
	}
	return q.popLocked(), true
}

// TryPop returns immediately with (nil, false) if the queue is empty.
func (q *PacketQueue) TryPop() (*Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return nil, false
	}
	return q.popLocked(), true
}

func (q *PacketQueue) popLocked() *Packet {
	front := q.items.Front()
	q.items.Remove(front)
	pkt := front.Value.(*Packet)
	q.size -= pkt.Size()
	q.duration -= pkt.Duration
	q.packetCount.Add(-1)
	if q.items.Len() == 0 {
		q.free.Broadcast()
	}
	return pkt
}

// Flush drops every queued packet, releasing their payloads, without
// changing the serial (§4.1).
func (q *PacketQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for e := q.items.Front(); e != nil; e = e.Next() {
		pkt := e.Value.(*Packet)
		pkt.Release()
	}
	q.items.Init()
	q.size = 0
	q.duration = 0
	q.packetCount.Store(0)
	q.free.Broadcast()
}

// WaitFree blocks until the queue is empty or aborted.
func (q *PacketQueue) WaitFree() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() != 0 && !q.abort.Load() {
		q.free.Wait()
	}
}

// Wake unblocks every waiter without changing state, used on Stop.
func (q *PacketQueue) Wake() {
	q.mu.Lock()
	q.added.Broadcast()
	q.free.Broadcast()
	q.mu.Unlock()
}

// Size returns the aggregate byte size (payload + node overhead).
func (q *PacketQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Duration returns the aggregate packet duration in stream time-base units.
func (q *PacketQueue) Duration() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.duration
}

// NbPackets returns the current packet count (lock-free, best-effort).
func (q *PacketQueue) NbPackets() int64 {
	return q.packetCount.Load()
}

// Serial returns the queue's current serial.
func (q *PacketQueue) Serial() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.serial
}
