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
	"net/url"
	"strings"
)

// ValidateDocument validates the fields a pipeline run needs.
//
// Validation rules:
//   - Id must not be empty
//   - UserId must not be empty
//   - SourceURL must be an absolute http, https or file URL
//
// NOT validated (owned by the status tracker):
//   - Status, Progress, ErrorMessage
//   - ChunkCount
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return &ValidationError{Field: "document", Reason: "is nil"}
	}
	if strings.TrimSpace(doc.Id) == "" {
		return &ValidationError{Field: "document id", Reason: "is required"}
	}
	if strings.TrimSpace(doc.UserId) == "" {
		return &ValidationError{Field: "user id", Reason: "is required"}
	}
	return ValidateSourceURL(doc.SourceURL)
}

// ValidateSourceURL checks that a source URL can be fetched.
func ValidateSourceURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &ValidationError{Field: "source url", Reason: "is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: "source url", Reason: "is malformed"}
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return &ValidationError{Field: "source url", Reason: "has no host"}
		}
	case "file":
		if u.Path == "" {
			return &ValidationError{Field: "source url", Reason: "has no path"}
		}
	default:
		return &ValidationError{Field: "source url", Reason: "must use http, https or file scheme"}
	}
	return nil
}
