package app

// Key binding constants used in handleKey.
const (
	KeyQuit          = "q"
	KeyQuitUpper     = "Q"
	KeyCtrlC         = "ctrl+c"
	KeyAgree         = "a"
	KeyDisagree      = "d"
	KeyPass          = "p"
	KeyPause         = " "
	KeySeekBack      = "h"
	KeySeekBackArrow = "left"
	KeySeekFwd       = "l"
	KeySeekFwdArrow  = "right"
	KeyMediaKeys     = "m"
)

// SeekStep is how far h/l move the playback position, in seconds.
const SeekStep = 5.0
