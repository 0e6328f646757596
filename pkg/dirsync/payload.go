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

package dirsync

import (
	"errors"
	"fmt"
	"slices"
)

const (
	// PatchOpSchema is the SCIM 2.0 PatchOp message schema URI.
	// See https://datatracker.ietf.org/doc/html/rfc7644#section-3.5.2
	PatchOpSchema = "urn:ietf:params:scim:api:messages:2.0:PatchOp"

	membersPath = "members"
)

// Operation is the direction of a membership change.
type Operation string

const (
	OperationAdd    Operation = "add"
	OperationRemove Operation = "remove"
)

// ChangePayload is one side of a group diff: every ID to add to, or remove
// from, a single group.
type ChangePayload struct {
	Operation Operation `json:"operation"`
	GroupID   string    `json:"group_id"`
	MemberIDs []string  `json:"member_ids"`
}

// PatchBody is a SCIM PatchOp request body.
type PatchBody struct {
	Schemas    []string          `json:"schemas"`
	Operations []*PatchOperation `json:"Operations"`
}

// PatchOperation is one operation of a PatchBody.
type PatchOperation struct {
	Op    string        `json:"op"`
	Path  string        `json:"path,omitempty"`
	Value []*PatchValue `json:"value,omitempty"`
}

// PatchValue references one member of a group.
type PatchValue struct {
	Value string `json:"value"`
}

// TranslateDiff converts a diff of the given group into change payloads. A
// side of the diff without IDs yields no payload, so an empty diff yields
// none. Removals come first in the returned slice but the payloads are
// independent of each other.
func TranslateDiff(groupID string, diff *Diff) []*ChangePayload {
	var payloads []*ChangePayload
	if len(diff.Removed) > 0 {
		payloads = append(payloads, &ChangePayload{
			Operation: OperationRemove,
			GroupID:   groupID,
			MemberIDs: diff.Removed.Sorted(),
		})
	}
	if len(diff.Added) > 0 {
		payloads = append(payloads, &ChangePayload{
			Operation: OperationAdd,
			GroupID:   groupID,
			MemberIDs: diff.Added.Sorted(),
		})
	}
	return payloads
}

// PatchBody renders the payload as a single SCIM PatchOp operation carrying
// the whole batch.
func (p *ChangePayload) PatchBody() *PatchBody {
	values := make([]*PatchValue, 0, len(p.MemberIDs))
	for _, id := range p.MemberIDs {
		values = append(values, &PatchValue{Value: id})
	}
	return &PatchBody{
		Schemas: []string{PatchOpSchema},
		Operations: []*PatchOperation{{
			Op:    string(p.Operation),
			Path:  membersPath,
			Value: values,
		}},
	}
}

// ParsePatchBody is the inverse of ChangePayload.PatchBody. Every operation
// of the body becomes one payload for the given group. Only member add and
// remove operations are accepted, and nil operations or values are rejected.
func ParsePatchBody(groupID string, body *PatchBody) ([]*ChangePayload, error) {
	if body == nil {
		return nil, fmt.Errorf("patch body is required")
	}
	if !slices.Contains(body.Schemas, PatchOpSchema) {
		return nil, fmt.Errorf("patch body is missing schema %s", PatchOpSchema)
	}

	var merr error
	payloads := make([]*ChangePayload, 0, len(body.Operations))
	for i, op := range body.Operations {
		if op == nil {
			merr = errors.Join(merr, fmt.Errorf("operation %d is empty", i))
			continue
		}
		if op.Path != membersPath {
			merr = errors.Join(merr, fmt.Errorf("operation %d: unsupported path %q", i, op.Path))
			continue
		}
		operation := Operation(op.Op)
		if operation != OperationAdd && operation != OperationRemove {
			merr = errors.Join(merr, fmt.Errorf("operation %d: unsupported op %q", i, op.Op))
			continue
		}
		ids := make([]string, 0, len(op.Value))
		valid := true
		for j, v := range op.Value {
			if v == nil {
				merr = errors.Join(merr, fmt.Errorf("operation %d: value %d is empty", i, j))
				valid = false
				continue
			}
			ids = append(ids, v.Value)
		}
		if !valid {
			continue
		}
		payloads = append(payloads, &ChangePayload{
			Operation: operation,
			GroupID:   groupID,
			MemberIDs: ids,
		})
	}
	if merr != nil {
		return nil, merr
	}
	return payloads, nil
}
