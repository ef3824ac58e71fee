package aircopy

/*-------------------------------------------------------------
 *
 * Purpose:	16 bit checksum used to protect each AirCopy packet.
 *
 * Description:	The radio computes this with its CRC peripheral set up
 *		for CRC-16/XMODEM: polynomial 0x1021, initial value 0,
 *		no reflection, no final xor.  Both ends only need to
 *		agree, so any deterministic 16 bit CRC would do, but
 *		this one keeps us interoperable with real radios.
 *
 *		Check value for "123456789" is 0x31C3.
 *
 *--------------------------------------------------------------*/

var crc16_table = func() [256]uint16 {
	var table [256]uint16
	for i := 0; i < 256; i++ {
		var crc = uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}()

// Checksum16 returns the CRC-16/XMODEM of data.
func Checksum16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = (crc << 8) ^ crc16_table[byte(crc>>8)^b]
	}
	return crc
}
