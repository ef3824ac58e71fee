package aircopy

/*--------------------------------------------------------------------------------
 *
 * Purpose:	Scramble / descramble the protected words of an AirCopy packet.
 *
 * Description:	Each word is XORed with a fixed 8 word key, repeating.
 *		Applying it twice gives back the original so the same
 *		function is used in both directions.
 *
 *		This only stops someone casually reading channel data
 *		off the air with a generic FSK decoder.  It is not
 *		encryption and provides no secrecy.
 *
 *--------------------------------------------------------------------------------*/

var obfuscationKey = [8]uint16{0x6C16, 0xE614, 0x912E, 0x400D, 0x3521, 0x40D5, 0x0313, 0x80E9}

// Obfuscate XORs words[i] with key[i mod 8], in place.
// It is its own inverse.
func Obfuscate(words []uint16) {
	for i := range words {
		words[i] ^= obfuscationKey[i%len(obfuscationKey)]
	}
}
