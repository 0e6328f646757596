// Copyright 2025 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package v1alpha1

import "context"

// Reconciler converges the stored membership snapshot of polled directories
// toward what their providers currently report.
type Reconciler interface {
	// Name provides descriptive name or identifier of the Reconciler
	// implementation. It will be used for logging purpose.
	Name() string

	// ReconcileDirectory runs one reconciliation pass over the directory with
	// the given ID.
	ReconcileDirectory(ctx context.Context, directoryID string) error

	// ReconcileAll runs one reconciliation pass over every directory this
	// Reconciler is aware of. A failure in one directory does not stop the
	// others; the returned error joins the failures of the pass.
	ReconcileAll(ctx context.Context) error
}
