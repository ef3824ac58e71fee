package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Hand received words from the radio to the main loop.
 *
 * Description:	On the radio the FSK FIFO interrupt appends words to a
 *		buffer and bumps an index; the main loop notices the
 *		index reached 36 and processes the packet.  Here the
 *		producer is a link reader goroutine.
 *
 *		The buffer and index are one unit.  Push and Drain both
 *		hold the lock, so a drain can never see a half reset
 *		index or lose a word pushed in the middle of it.
 *		Words arriving while a full packet is still waiting are
 *		dropped, as the radio FIFO would overrun.
 *
 *------------------------------------------------------------------*/

import "sync"

// RxBuffer is a single producer, single consumer packet cell.
type RxBuffer struct {
	mu      sync.Mutex
	words   Packet
	n       int
	dropped int

	ready chan struct{}
}

func NewRxBuffer() *RxBuffer {
	return &RxBuffer{ready: make(chan struct{}, 1)}
}

// Push appends one word.  It returns true if this word completed a packet.
func (b *RxBuffer) Push(w uint16) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.n >= PacketWords {
		b.dropped++
		return false
	}

	b.words[b.n] = w
	b.n++

	if b.n < PacketWords {
		return false
	}

	select {
	case b.ready <- struct{}{}:
	default:
	}

	return true
}

// PushPacket pushes all the words of p, in order.
func (b *RxBuffer) PushPacket(p *Packet) {
	for _, w := range p {
		b.Push(w)
	}
}

// Ready is signalled when a full packet is waiting.
func (b *RxBuffer) Ready() <-chan struct{} {
	return b.ready
}

// Full reports whether a complete packet is waiting.
func (b *RxBuffer) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.n >= PacketWords
}

// Drain takes the waiting packet, if there is one, and resets the index.
func (b *RxBuffer) Drain() (Packet, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.n < PacketWords {
		return Packet{}, false
	}

	var p = b.words
	b.n = 0

	return p, true
}

// Reset throws away anything partially received.
func (b *RxBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.n = 0
	select {
	case <-b.ready:
	default:
	}
}

// Dropped counts words lost because a packet was still waiting.
func (b *RxBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dropped
}
