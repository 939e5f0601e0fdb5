package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// playbackBuffer holds agent audio until the device asks for it.
type playbackBuffer struct {
	mu      sync.Mutex
	pending []byte
}

func (b *playbackBuffer) Write(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, frame...)
}

// Fill copies as much pending audio as fits into out and zeroes the rest.
// It returns the number of audio bytes copied.
func (b *playbackBuffer) Fill(out []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := copy(out, b.pending)
	b.pending = b.pending[n:]
	if len(b.pending) == 0 {
		b.pending = nil
	}
	clear(out[n:])
	return n
}

func (b *playbackBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

func (b *playbackBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

type playbackDevice struct {
	device *malgo.Device
	buffer playbackBuffer

	mu sync.Mutex
}

func (p *playbackDevice) Init(audioContext *malgo.AllocatedContext, sampleRate uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = sampleRate
	config.Playback.Format = format
	config.Playback.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	config.Periods = 4

	var err error
	p.device, err = malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			need := int(frameCount) * bytesPerFrame
			if need > len(pOutput) {
				need = len(pOutput)
			}
			p.buffer.Fill(pOutput[:need])
		},
	})
	return err
}

func (p *playbackDevice) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return ErrNotConnected
	}
	if err := p.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (p *playbackDevice) Enqueue(frame []byte) error {
	p.mu.Lock()
	started := p.device != nil && p.device.IsStarted()
	p.mu.Unlock()
	if !started {
		return ErrNotConnected
	}
	p.buffer.Write(frame)
	return nil
}

func (p *playbackDevice) Clear() {
	p.buffer.Clear()
}

func (p *playbackDevice) Uninit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
	p.buffer.Clear()
}
