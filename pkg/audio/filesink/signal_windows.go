//go:build windows

package filesink

import (
	"os"

	"github.com/MrWong99/parrot/pkg/audio"
)

func suspend(*os.Process) error { return audio.ErrNotSupported }

func resume(*os.Process) error { return audio.ErrNotSupported }
