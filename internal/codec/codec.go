// Package codec serializes the domain records in internal/model to and
// from the opaque byte blobs stored at coordinator nodes.
//
// encoding/json is used rather than a binary serializer because no
// generated-code path for protobuf or msgpack is available here, and
// JSON is self-describing enough to survive the RunnableTask schema
// evolving across scheduler versions.
package codec

import (
	"encoding/json"
	"fmt"

	"flowdag/internal/model"
)

// EncodeRunnableTask serializes a RunnableTask.
func EncodeRunnableTask(r *model.RunnableTask) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode runnable task: %w", err)
	}
	return b, nil
}

// DecodeRunnableTask deserializes a RunnableTask.
func DecodeRunnableTask(b []byte) (*model.RunnableTask, error) {
	var r model.RunnableTask
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode runnable task: %w", err)
	}
	return &r, nil
}

// EncodeExecutableTask serializes an ExecutableTask (queue entry payload).
func EncodeExecutableTask(t *model.ExecutableTask) ([]byte, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode executable task: %w", err)
	}
	return b, nil
}

// DecodeExecutableTask deserializes an ExecutableTask.
func DecodeExecutableTask(b []byte) (*model.ExecutableTask, error) {
	var t model.ExecutableTask
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode executable task: %w", err)
	}
	return &t, nil
}

// EncodeStartedTask serializes a StartedTask.
func EncodeStartedTask(s *model.StartedTask) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode started task: %w", err)
	}
	return b, nil
}

// DecodeStartedTask deserializes a StartedTask.
func DecodeStartedTask(b []byte) (*model.StartedTask, error) {
	var s model.StartedTask
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode started task: %w", err)
	}
	return &s, nil
}

// EncodeResult serializes a TaskExecutionResult.
func EncodeResult(r *model.TaskExecutionResult) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return b, nil
}

// DecodeResult deserializes a TaskExecutionResult.
func DecodeResult(b []byte) (*model.TaskExecutionResult, error) {
	var r model.TaskExecutionResult
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &r, nil
}
