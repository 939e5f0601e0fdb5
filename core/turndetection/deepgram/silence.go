package deepgram

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-realtime/internal/utils"
)

const (
	silenceChunkDuration = 50 * time.Millisecond
	silencePadding       = time.Second
	keepAliveInterval    = 5 * time.Second
)

// generateSilence pads short gaps in the room audio with silence so endpointing
// keeps working, then falls back to keep-alive messages while the room stays
// quiet.
func (v *VAD) generateSilence(ctx context.Context) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	ticker := time.NewTicker(silenceChunkDuration)
	defer ticker.Stop()

	chunk := make([]byte, v.encoding.BytesPerSecond()*int(silenceChunkDuration/time.Millisecond)/1000)
	for i := range chunk {
		chunk[i] = v.encoding.SilenceValue()
	}

	var state = silenceGeneratorStateWaiting
	var firstSilenceTime *time.Time
	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sinceLastMsg := v.sinceLastMessage()
			switch state {
			case silenceGeneratorStateWaiting:
				if sinceLastMsg > silenceChunkDuration {
					state = silenceGeneratorStateSilence
					firstSilenceTime = utils.Ptr(time.Now())
				}

			case silenceGeneratorStateSilence:
				if sinceLastMsg < silenceChunkDuration {
					state = silenceGeneratorStateWaiting
					firstSilenceTime = nil
					continue
				}
				if time.Since(*firstSilenceTime) >= silencePadding {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = utils.Ptr(time.Now())
					firstSilenceTime = nil
					continue
				}
				if err := v.write(websocket.BinaryMessage, chunk); err != nil {
					logger.Debug("failed to send silence to deepgram", "error", err)
				}

			case silenceGeneratorStateKeepAlive:
				if sinceLastMsg < silenceChunkDuration {
					state = silenceGeneratorStateWaiting
					continue
				}
				if time.Since(*lastKeepAliveTime) >= keepAliveInterval {
					lastKeepAliveTime = utils.Ptr(time.Now())
					if err := v.write(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`)); err != nil {
						logger.Debug("failed to send keep-alive to deepgram", "error", err)
					}
				}
			}
		}
	}
}

func (v *VAD) sinceLastMessage() time.Duration {
	v.connMu.Lock()
	defer v.connMu.Unlock()
	return time.Since(v.lastMsgTs)
}

// write sends without refreshing the last message time, so padding never
// counts as room audio.
func (v *VAD) write(messageType int, data []byte) error {
	v.connMu.Lock()
	defer v.connMu.Unlock()
	if v.conn == nil {
		return ErrNotStreaming
	}
	return v.conn.WriteMessage(messageType, data)
}
