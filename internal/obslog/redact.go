// Copyright 2025 Kadir Pekel
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

package obslog

import (
	"context"
	"log/slog"
	"strings"
)

// sensitiveKeys are attribute keys whose values are replaced with a
// redaction marker before a log record reaches its handler. Matching is
// case-insensitive and matches on substring so "user_api_key" matches
// "api_key" and "ApiKeySecret" matches "apikey" and "secret".
var sensitiveKeys = []string{
	"password",
	"api_key",
	"apikey",
	"secret",
	"token",
	"authorization",
	"ssn",
	"patient_name",
	"patient_id",
	"email",
	"phone",
	"dob",
	"date_of_birth",
	"mrn",
}

const redactedValue = "[REDACTED]"

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// RedactingHandler wraps an slog.Handler and redacts the value of any
// attribute whose key matches the sensitive-key list, recursing into
// slog.Group values. Maps and slices logged as a single value (slog.Any)
// are not inspected: their keys and elements pass through unredacted.
type RedactingHandler struct {
	next slog.Handler
}

// NewRedactingHandler wraps next so every record it handles first passes
// through key-based redaction.
func NewRedactingHandler(next slog.Handler) *RedactingHandler {
	return &RedactingHandler{next: next}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	redacted := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, redacted)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = redactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(out)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, redactedValue)
	}

	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, ga := range group {
			out[i] = redactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	return a
}

var _ slog.Handler = (*RedactingHandler)(nil)
