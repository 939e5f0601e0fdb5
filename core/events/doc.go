// Package events defines the typed event contract published by a voice
// session.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - session.*
//   - user_input.*
//   - assistant_response.*
//   - assistant_speech.*
//   - tool_call.*
//   - turn_state.*
//
// Semantics used across the package:
//
//   - Frame: binary audio frame/chunk payload.
//   - Segment: append-only text piece emitted in stream order.
//   - Final: terminal immutable text/state for the current reply.
//
// session events
//
//   - SessionStateChanged (session.state_changed): session moved between
//     lifecycle states.
//   - SessionFailed (session.failed): session ended because the model
//     connection could not be kept alive.
//   - SessionClosed (session.closed): session reached its terminal state.
//
// user_input events
//
//   - UserSpeechStarted (user_input.speech_started): speech activity began;
//     BargeIn is set when the agent held the floor.
//   - UserSpeechEnded (user_input.speech_ended): speech activity ended.
//
// assistant_response events
//
//   - AssistantResponseStarted (assistant_response.started): the model started
//     a reply.
//   - AssistantResponseSegment (assistant_response.segment): streamed reply
//     text segment.
//   - AssistantResponseFinal (assistant_response.final): the reply is complete
//     or was truncated.
//
// assistant_speech events
//
//   - AssistantSpeechFrame (assistant_speech.frame): reply audio frame handed
//     to the room.
//
// tool_call events
//
//   - ToolCallStarted (tool_call.started): tool execution started.
//   - ToolCallCompleted (tool_call.completed): tool execution completed.
//   - ToolCallFailed (tool_call.failed): tool execution failed.
//   - ToolCallCancelled (tool_call.cancelled): tool execution was abandoned.
//
// turn_state events
//
//   - TurnCancelled (turn_state.cancelled): the current reply was cancelled.
package events
