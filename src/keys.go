package aircopy

// Key is one of the radio keys AirCopy reacts to.
type Key int

const (
	KeyMenu Key = iota
	KeyExit
	KeyUp
	KeyDown
)

/*------------------------------------------------------------------
 *
 * Name:	ProcessKey
 *
 * Purpose:	The few key presses the AirCopy screen handles.
 *
 *		MENU	start sending the selected map.
 *		EXIT	abort a transfer; when idle, start receiving.
 *		UP/DOWN	select the next/previous map, only while idle.
 *
 * Inputs:	swapUpDown	- The "navigate left/right" build option
 *				  reverses the arrow direction.
 *
 *		Held keys and releases are ignored, like the radio.
 *
 *------------------------------------------------------------------*/

func (s *Session) ProcessKey(key Key, pressed bool, held bool, swapUpDown bool) {
	if held || !pressed {
		return
	}

	var up, down = 1, -1
	if swapUpDown {
		up, down = -1, 1
	}

	switch key {
	case KeyMenu:
		s.StartSend()
	case KeyExit:
		if s.State() == StateTransfer {
			s.Abort()
		} else {
			s.StartReceive()
		}
	case KeyUp:
		_ = s.Navigate(up) // Busy: ignored, as on the radio.
	case KeyDown:
		_ = s.Navigate(down)
	}
}
