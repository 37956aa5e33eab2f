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

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kbrag/kbrag/internal/rerrors"
)

// statusFor maps the error taxonomy spec §7 names to an HTTP status: an
// InputError is the caller's fault (4xx), everything else that reaches this
// layer is an unrecoverable server-side failure (500). 404/503 are decided
// by the handlers themselves, ahead of calling the orchestrator, since
// they depend on a check (does the path exist? is a hard dependency up?)
// rather than on the shape of a returned error.
func statusFor(err error) int {
	var inputErr *rerrors.InputError
	if errors.As(err, &inputErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response body", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{
		Status:  "error",
		Error:   http.StatusText(status),
		Message: err.Error(),
	})
}
