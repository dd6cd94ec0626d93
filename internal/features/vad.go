//go:build cgo

package features

import "github.com/visvasity/webrtcvad"

type vadProcessor struct {
	vad *webrtcvad.VAD
}

// Mode 1 keeps the detector permissive, which suits donated recordings
// made on consumer hardware.
const vadMode = 1

func newVAD() (*vadProcessor, error) {
	vad, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := vad.SetMode(vadMode); err != nil {
		return nil, err
	}
	return &vadProcessor{vad: vad}, nil
}

func (v *vadProcessor) Process(sampleRate int, frame []byte) (bool, error) {
	return v.vad.Process(sampleRate, frame)
}
