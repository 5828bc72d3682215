package audio

import (
	"fmt"
)

// Format describes the sample rate and channel count of 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form, e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// BytesPerSecond returns the data rate of f for 16-bit samples.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Convert converts little-endian int16 PCM from one format to another.
// Multi-channel input is downmixed to mono before resampling, so a stereo
// recording converted for a mono recogniser is resampled only once. Only mono
// and stereo are supported; an odd byte count is rejected.
func Convert(pcm []byte, from, to Format) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: odd byte count %d in 16-bit PCM", len(pcm))
	}
	if from.Channels < 1 || from.Channels > 2 || to.Channels < 1 || to.Channels > 2 {
		return nil, fmt.Errorf("audio: unsupported conversion %s -> %s", from, to)
	}
	if from == to {
		return pcm, nil
	}

	channels := from.Channels
	if channels == 2 && to.Channels == 1 {
		pcm = StereoToMono(pcm)
		channels = 1
	}
	if from.SampleRate != to.SampleRate {
		if channels == 1 {
			pcm = ResampleMono16(pcm, from.SampleRate, to.SampleRate)
		} else {
			pcm = ResampleStereo16(pcm, from.SampleRate, to.SampleRate)
		}
	}
	if channels == 1 && to.Channels == 2 {
		pcm = MonoToStereo(pcm)
	}
	return pcm, nil
}

func sample(pcm []byte, i int) int16 {
	return int16(pcm[i]) | int16(pcm[i+1])<<8
}

func putSample(out []byte, i int, s int16) {
	out[i] = byte(s)
	out[i+1] = byte(s >> 8)
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		s := sample(pcm, i)
		putSample(out, i*2, s)
		putSample(out, i*2+2, s)
	}
	return out
}

// StereoToMono averages L+R per stereo frame.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		avg := (int32(sample(pcm, i*4)) + int32(sample(pcm, i*4+2))) / 2
		putSample(out, i*2, int16(avg))
	}
	return out
}

// ResampleMono16 resamples mono PCM from srcRate to dstRate using linear
// interpolation. Invalid rates return the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	return resample(pcm, 1, srcRate, dstRate)
}

// ResampleStereo16 resamples interleaved stereo PCM from srcRate to dstRate
// using linear interpolation per channel.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	return resample(pcm, 2, srcRate, dstRate)
}

func resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	frameSize := channels * 2
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < frameSize {
		return pcm
	}
	srcFrames := len(pcm) / frameSize
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*frameSize)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for c := range channels {
			s0 := float64(sample(pcm, idx*frameSize+c*2))
			s1 := float64(sample(pcm, next*frameSize+c*2))
			putSample(out, i*frameSize+c*2, int16(s0*(1-frac)+s1*frac))
		}
	}
	return out
}
