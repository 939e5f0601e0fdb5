package miniaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-realtime/core/audio"
)

var ErrNotConnected = errors.New("audio devices are not connected")

type RoomOption func(*Room)

// WithInputEncoding sets the format microphone frames are captured in.
func WithInputEncoding(encoding audio.EncodingInfo) RoomOption {
	return func(r *Room) {
		r.input = encoding
	}
}

// WithOutputEncoding sets the format of audio handed to Play.
func WithOutputEncoding(encoding audio.EncodingInfo) RoomOption {
	return func(r *Room) {
		r.output = encoding
	}
}

// Room is a conversation room made of the local microphone and speaker.
type Room struct {
	input  audio.EncodingInfo
	output audio.EncodingInfo

	mu sync.Mutex
	// audioContext is only kept to be able to uninitialize it
	audioContext *malgo.AllocatedContext
	playback     playbackDevice
	capture      captureDevice
}

func NewRoom(opts ...RoomOption) *Room {
	r := &Room{
		input:  audio.GetDefaultEncodingInfo(),
		output: audio.EncodingInfo{SampleRate: 24000, Format: audio.EncodingLinear16},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Room) InputEncoding() audio.EncodingInfo { return r.input }
func (r *Room) OutputEncoding() audio.EncodingInfo { return r.output }

// Connect opens the default capture and playback devices and starts
// playback.
func (r *Room) Connect(ctx context.Context) error {
	if r.input.Format != audio.EncodingLinear16 || r.output.Format != audio.EncodingLinear16 {
		return fmt.Errorf("unsupported room encoding %s/%s", r.input.Format.Name(), r.output.Format.Name())
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.audioContext != nil {
		return nil
	}

	audioContext, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}
	r.audioContext = audioContext

	if err := r.playback.Init(audioContext, uint32(r.output.SampleRate)); err != nil {
		r.releaseLocked()
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := r.playback.Start(); err != nil {
		r.releaseLocked()
		return err
	}
	if err := r.capture.Init(audioContext, uint32(r.input.SampleRate)); err != nil {
		r.releaseLocked()
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}
	return nil
}

func (r *Room) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.audioContext == nil {
		return nil
	}
	return r.releaseLocked()
}

func (r *Room) releaseLocked() error {
	r.capture.Uninit()
	r.playback.Uninit()
	err := r.audioContext.Uninit()
	r.audioContext.Free()
	r.audioContext = nil
	if err != nil {
		return fmt.Errorf("failed to uninitialize audio context: %w", err)
	}
	return nil
}

// Capture delivers microphone frames to onFrame until ctx is cancelled.
func (r *Room) Capture(ctx context.Context, onFrame func(frame []byte)) error {
	if err := r.capture.Start(onFrame); err != nil {
		return err
	}
	<-ctx.Done()
	if err := r.capture.Stop(); err != nil {
		logger.Debug("failed to stop capture", "error", err)
	}
	return nil
}

func (r *Room) Play(frame []byte) error {
	return r.playback.Enqueue(frame)
}

func (r *Room) ClearPlayback() {
	r.playback.Clear()
}
