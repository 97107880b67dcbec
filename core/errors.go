// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error surfaced by the service matches one of these with errors.Is.
var (
	// ErrValidation indicates a malformed invocation. Nothing was mutated.
	ErrValidation = errors.New("validation failed")

	// ErrUpstream indicates a fetch, embedding provider or vector store failure.
	ErrUpstream = errors.New("upstream failure")

	// ErrNotFound indicates an operation referenced an unknown entity.
	ErrNotFound = errors.New("not found")
)

// Domain errors
var (
	// ErrInvalidStatus indicates an unknown document status value.
	ErrInvalidStatus = errors.New("invalid document status")

	// ErrRecordType indicates a typed accessor was used on the wrong record variant.
	ErrRecordType = errors.New("unexpected record type")

	// ErrInvalidRecord indicates a vector record with malformed metadata.
	ErrInvalidRecord = errors.New("invalid record")
)

// ValidationError describes a missing or malformed required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// UpstreamError wraps a collaborator failure with the pipeline stage it happened in.
type UpstreamError struct {
	Stage string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is matches ErrUpstream.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// Upstream wraps err as an UpstreamError for stage. A nil err stays nil.
func Upstream(stage string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Stage: stage, Err: err}
}
