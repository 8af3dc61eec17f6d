package testsupport

import (
	"context"
	"os"
	"sync"
)

// FakeTranscoder satisfies transcoder.Transcoder without running ffmpeg.
// Intermediate writes IntermediateData (or a copy of the input when nil) and
// Final copies its input to the output, recording the bytes it received.
type FakeTranscoder struct {
	IntermediateData []byte
	IntermediateErr  error
	FinalErr         error
	// OnFinal, when set, runs before Final writes anything.
	OnFinal func(input, output string)

	mu                sync.Mutex
	intermediateCalls int
	finalCalls        int
	codecs            [][2]string
	finalInputs       [][]byte
}

// Intermediate implements transcoder.Transcoder.
func (f *FakeTranscoder) Intermediate(ctx context.Context, input, output, videoCodec, audioCodec string, _ bool) error {
	f.mu.Lock()
	f.intermediateCalls++
	f.codecs = append(f.codecs, [2]string{videoCodec, audioCodec})
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if f.IntermediateErr != nil {
		return f.IntermediateErr
	}
	data := f.IntermediateData
	if data == nil {
		var err error
		if data, err = os.ReadFile(input); err != nil {
			return err
		}
	}
	return os.WriteFile(output, data, 0o644)
}

// Final implements transcoder.Transcoder.
func (f *FakeTranscoder) Final(ctx context.Context, input, output string) error {
	f.mu.Lock()
	f.finalCalls++
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if f.OnFinal != nil {
		f.OnFinal(input, output)
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.finalInputs = append(f.finalInputs, data)
	f.mu.Unlock()
	if f.FinalErr != nil {
		return f.FinalErr
	}
	return os.WriteFile(output, data, 0o644)
}

// IntermediateCalls reports how many times Intermediate ran.
func (f *FakeTranscoder) IntermediateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intermediateCalls
}

// FinalCalls reports how many times Final ran.
func (f *FakeTranscoder) FinalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalCalls
}

// Codecs returns the codec pairs passed to Intermediate, in call order.
func (f *FakeTranscoder) Codecs() [][2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]string(nil), f.codecs...)
}

// LastFinalInput returns the bytes Final read on its most recent call.
func (f *FakeTranscoder) LastFinalInput() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.finalInputs) == 0 {
		return nil
	}
	return f.finalInputs[len(f.finalInputs)-1]
}
