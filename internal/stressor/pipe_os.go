package stressor

import "os"

// osPipe creates the pipe Pipe.Run uses; it is a plain wrapper around
// os.Pipe.
func osPipe() (*os.File, *os.File, error) {
	return os.Pipe()
}
