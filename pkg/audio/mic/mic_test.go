package mic

import (
	"slices"
	"testing"
)

func TestEncode(t *testing.T) {
	got := encode([]int16{1, -1, 256, -32768})
	want := []byte{1, 0, 0xff, 0xff, 0, 1, 0, 0x80}
	if !slices.Equal(got, want) {
		t.Errorf("encode = %v, want %v", got, want)
	}
}

func TestTerminate_WithoutInit(t *testing.T) {
	if err := Terminate(); err != nil {
		t.Errorf("Terminate without Init = %v, want nil", err)
	}
}
