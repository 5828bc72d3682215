//go:build windows

package espeak

import (
	"os"

	"github.com/MrWong99/parrot/pkg/provider/synth"
)

func suspend(*os.Process) error { return synth.ErrNotSupported }

func resume(*os.Process) error { return synth.ErrNotSupported }
