package aircopy

/*------------------------------------------------------------------
 *
 * Purpose:	What AirCopy needs from the radio chip.
 *
 * Description:	On the radio these are BK4819 register sequences.
 *		Here they are interfaces implemented by the links in
 *		link_*.go.
 *
 *------------------------------------------------------------------*/

// StatusRxError is the FSK receive error bit of the status register.
const StatusRxError uint16 = 0x0010

// Transmitter sends packets.
type Transmitter interface {
	// SetTxParameters tunes and keys up for transmit.
	SetTxParameters() error
	SendFSKData(p *Packet) error
	// DisablePowerAmp must leave the PA off, whatever happened before.
	DisablePowerAmp() error
}

// Receiver fills an RxBuffer in the background.
// Re-arming is assumed to always work.
type Receiver interface {
	ReadStatus() uint16
	// PrepareFSKReceive arms the receiver for the next packet.
	PrepareFSKReceive()
	// ResetFSK is the harder reset, needed when byte framing may be lost.
	ResetFSK()
}

type Radio interface {
	Transmitter
	Receiver
}
