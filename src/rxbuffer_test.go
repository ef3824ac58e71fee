package aircopy

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRxBufferFillAndDrain(t *testing.T) {
	var b = NewRxBuffer()

	var _, ok = b.Drain()
	assert.False(t, ok)

	for i := 0; i < PacketWords-1; i++ {
		assert.False(t, b.Push(uint16(i)))
	}
	assert.False(t, b.Full())
	assert.True(t, b.Push(35))
	assert.True(t, b.Full())

	select {
	case <-b.Ready():
	default:
		t.Fatal("ready not signalled")
	}

	// Overrun.
	assert.False(t, b.Push(0xFFFF))
	assert.Equal(t, 1, b.Dropped())

	var p Packet
	p, ok = b.Drain()
	require.True(t, ok)
	for i := range p {
		assert.Equal(t, uint16(i), p[i])
	}

	_, ok = b.Drain()
	assert.False(t, ok)
}

func TestRxBufferReset(t *testing.T) {
	var b = NewRxBuffer()
	var p = EncodePacket(0, payloadOf(0))
	b.PushPacket(&p)

	b.Reset()

	assert.False(t, b.Full())
	select {
	case <-b.Ready():
		t.Fatal("ready left behind by reset")
	default:
	}
}

// A producer pushing whole packets never has words from two packets
// interleaved as seen by the consumer.
func TestRxBufferConcurrent(t *testing.T) {
	var b = NewRxBuffer()
	const packets = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for n := 0; n < packets; n++ {
			for b.Full() {
				runtime.Gosched() // Wait for the consumer, like a radio that is not overrun.
			}
			var p Packet
			for i := range p {
				p[i] = uint16(n)
			}
			b.PushPacket(&p)
		}
	}()

	for got := 0; got < packets; {
		<-b.Ready()
		var p, ok = b.Drain()
		if !ok {
			continue
		}
		for i := range p {
			require.Equal(t, p[0], p[i])
		}
		got++
	}

	wg.Wait()
	assert.Equal(t, 0, b.Dropped())
}
