package orchestration

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-realtime/core/realtime"
)

// Entrypoint runs one session for job and blocks until it ends. The session
// takes the job id. A *SessionFailedError is the terminal failure signal for
// the job runner; a closed or cancelled session returns nil or ctx.Err().
func Entrypoint(ctx context.Context, job Job, model realtime.Model, opts ...SessionOption) error {
	opts = append([]SessionOption{WithSessionID(job.ID())}, opts...)
	session, err := NewSession(job.Room(), model, opts...)
	if err != nil {
		return fmt.Errorf("failed to create session for job %s: %w", job.ID(), err)
	}

	logger.Info("starting session", "job_id", job.ID(), "session_id", session.ID())
	return session.Run(ctx)
}
