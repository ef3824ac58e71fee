package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	Build and check the fixed size AirCopy packet.
 *
 * Description:	Every packet is 36 sixteen bit words, sent least
 *		significant byte first:
 *
 *		  word 0	start marker 0xABCD
 *		  word 1	logical (EEPROM) offset of the block
 *		  words 2-33	64 bytes of payload
 *		  word 34	checksum of words 1-33 (66 bytes)
 *		  word 35	end marker 0xDCBA
 *
 *		Words 1 through 34 are obfuscated on the air.  The
 *		markers never are, so they can be checked before
 *		anything else is done with a received buffer.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	PacketWords = 36
	PacketBytes = PacketWords * 2
	BlockSize   = 64

	packetStartMarker uint16 = 0xABCD
	packetEndMarker   uint16 = 0xDCBA

	// Index of the first and one past the last obfuscated word.
	protectedFirst = 1
	protectedEnd   = 35

	checksumWord = 34
)

var (
	ErrBadMarkers       = errors.New("bad start or end marker")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Packet is one AirCopy frame as it appears on the air.
type Packet [PacketWords]uint16

// EncodePacket frames one 64 byte block for transmission.
func EncodePacket(offset uint16, payload *[BlockSize]byte) Packet {
	var p Packet

	p[0] = packetStartMarker
	p[1] = offset
	for i := 0; i < BlockSize/2; i++ {
		p[2+i] = binary.LittleEndian.Uint16(payload[2*i:])
	}
	p[checksumWord] = p.checksum()
	p[PacketWords-1] = packetEndMarker

	Obfuscate(p[protectedFirst:protectedEnd])

	return p
}

// DecodePacket checks a received packet and extracts the offset and payload.
// The packet itself is not modified.
func DecodePacket(p Packet) (uint16, [BlockSize]byte, error) {
	var payload [BlockSize]byte

	if p[0] != packetStartMarker || p[PacketWords-1] != packetEndMarker {
		return 0, payload, fmt.Errorf("decode packet: %w (0x%04X, 0x%04X)", ErrBadMarkers, p[0], p[PacketWords-1])
	}

	Obfuscate(p[protectedFirst:protectedEnd])

	var crc = p.checksum()
	if crc != p[checksumWord] {
		return 0, payload, fmt.Errorf("decode packet: %w (got 0x%04X, computed 0x%04X)", ErrChecksumMismatch, p[checksumWord], crc)
	}

	for i := 0; i < BlockSize/2; i++ {
		binary.LittleEndian.PutUint16(payload[2*i:], p[2+i])
	}

	return p[1], payload, nil
}

// checksum covers the offset and payload words, in their clear form.
func (p *Packet) checksum() uint16 {
	var b [2 + BlockSize]byte
	for i := 0; i < len(b)/2; i++ {
		binary.LittleEndian.PutUint16(b[2*i:], p[1+i])
	}
	return Checksum16(b[:])
}

// MarshalBinary returns the 72 byte wire form.
func (p *Packet) MarshalBinary() ([]byte, error) {
	var b = make([]byte, PacketBytes)
	for i, w := range p {
		binary.LittleEndian.PutUint16(b[2*i:], w)
	}
	return b, nil
}

// UnmarshalBinary is the reverse of MarshalBinary.  No checking is done here,
// that is DecodePacket's job.
func (p *Packet) UnmarshalBinary(b []byte) error {
	if len(b) != PacketBytes {
		return fmt.Errorf("packet is %d bytes, expected %d", len(b), PacketBytes)
	}
	for i := range p {
		p[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return nil
}
