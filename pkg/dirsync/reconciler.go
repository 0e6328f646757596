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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abcxyz/directory-sync/apis/v1alpha1"
	"github.com/abcxyz/pkg/logging"
)

// DefaultName is the name of a Reconciler created without one.
const DefaultName = "directory-sync"

// Ensure we conform to the interface.
var _ v1alpha1.Reconciler = (*Reconciler)(nil)

// ReconcilerParams holds the collaborators and tuning of a Reconciler.
type ReconcilerParams struct {
	Name       string
	Registry   Registry
	Adapters   *AdapterRegistry
	Store      MembershipStore
	Dispatcher *Dispatcher
	// Observer receives every skip, dispatch and failure. Defaults to
	// LogObserver.
	Observer Observer
	// EmptyPolicy decides when empty provider results are trusted. Defaults
	// to a policy that never trusts them.
	EmptyPolicy *EmptyPolicy
	// DirectoryWorkers bounds the directories processed concurrently and
	// GroupWorkers the groups processed concurrently within one directory.
	// Non-positive values use runtime.NumCPU.
	DirectoryWorkers int
	GroupWorkers     int
	// FetchTimeout bounds each provider call. Zero disables the bound.
	FetchTimeout time.Duration
}

// Reconciler adheres to the v1alpha1.Reconciler interface.
// It runs the following policy for every directory of a pass:
//
//  1. Resolve the provider adapter for the directory type.
//  2. Fetch the directory's groups. A fetch failure or an empty result that
//     the EmptyPolicy does not honor skips the directory without touching
//     stored state.
//  3. For each group, diff the provider member IDs against the stored ones.
//  4. Dispatch the remove batch and the add batch independently.
//  5. Store the member set that results from the batches that succeeded.
//
// Failures are contained to the directory, group or batch that produced them.
type Reconciler struct {
	name             string
	registry         Registry
	adapters         *AdapterRegistry
	store            MembershipStore
	dispatcher       *Dispatcher
	observer         Observer
	emptyPolicy      *EmptyPolicy
	directoryWorkers int
	groupWorkers     int
	fetchTimeout     time.Duration
	flights          *flightGuard
}

// NewReconciler creates a new Reconciler.
func NewReconciler(params *ReconcilerParams) *Reconciler {
	r := &Reconciler{
		name:             params.Name,
		registry:         params.Registry,
		adapters:         params.Adapters,
		store:            params.Store,
		dispatcher:       params.Dispatcher,
		observer:         params.Observer,
		emptyPolicy:      params.EmptyPolicy,
		directoryWorkers: params.DirectoryWorkers,
		groupWorkers:     params.GroupWorkers,
		fetchTimeout:     params.FetchTimeout,
		flights:          newFlightGuard(),
	}
	if r.name == "" {
		r.name = DefaultName
	}
	if r.observer == nil {
		r.observer = LogObserver{}
	}
	if r.emptyPolicy == nil {
		r.emptyPolicy = NewEmptyPolicy(0)
	}
	if r.adapters == nil {
		r.adapters = NewAdapterRegistry()
	}
	return r
}

// Name returns the reconciler name.
func (r *Reconciler) Name() string {
	return r.name
}

// ReconcileAll runs one pass over every directory of the registry.
func (r *Reconciler) ReconcileAll(ctx context.Context) error {
	start := time.Now()
	directories, err := r.registry.Directories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list directories: %w", err)
	}
	r.observer.Observe(ctx, &Observation{Kind: KindPassStarted, Count: len(directories)})

	merr := concurrentFunc(ctx, directories, r.directoryWorkers, r.reconcileDirectory)

	r.observer.Observe(ctx, &Observation{
		Kind:     KindPassCompleted,
		Count:    len(directories),
		Duration: time.Since(start),
		Err:      merr,
	})
	if merr != nil {
		return fmt.Errorf("failed to reconcile one or more directories: %w", merr)
	}
	return nil
}

// ReconcileDirectory runs one pass over the directory with the given ID.
func (r *Reconciler) ReconcileDirectory(ctx context.Context, directoryID string) error {
	directory, err := r.registry.Directory(ctx, directoryID)
	if err != nil {
		return fmt.Errorf("failed to get directory %s: %w", directoryID, err)
	}
	return r.reconcileDirectory(ctx, directory)
}

func (r *Reconciler) reconcileDirectory(ctx context.Context, directory *Directory) (retErr error) {
	logger := logging.FromContext(ctx).With(
		"directory_id", directory.ID,
		"tenant", directory.Tenant,
		"product", directory.Product,
	)
	ctx = logging.WithLogger(ctx, logger)

	defer func() {
		if p := recover(); p != nil {
			retErr = fmt.Errorf("panic while reconciling directory %s: %v", directory.ID, p)
			r.observer.Observe(ctx, &Observation{Kind: KindDirectoryFailed, DirectoryID: directory.ID, Err: retErr})
		}
	}()

	adapter, err := r.adapters.Lookup(directory.Type)
	if err != nil {
		r.observer.Observe(ctx, &Observation{
			Kind:        KindDirectoryFailed,
			DirectoryID: directory.ID,
			Reason:      "no provider adapter",
			Err:         err,
		})
		return fmt.Errorf("directory %s: %w", directory.ID, err)
	}

	groups, err := r.fetchGroups(ctx, adapter, directory)
	if err != nil {
		r.observer.Observe(ctx, &Observation{
			Kind:        KindDirectoryFailed,
			DirectoryID: directory.ID,
			Reason:      "fetch groups",
			Err:         err,
		})
		return fmt.Errorf("directory %s: failed to fetch groups: %w", directory.ID, err)
	}

	if len(groups) > 0 {
		r.emptyPolicy.Reset(directoryKey(directory.ID))
		return r.reconcileGroups(ctx, adapter, directory, groups, false)
	}

	honored, streak := r.emptyPolicy.Observe(directoryKey(directory.ID))
	if !honored {
		r.observer.Observe(ctx, &Observation{
			Kind:        KindEmptyGuarded,
			DirectoryID: directory.ID,
			Count:       streak,
			Reason:      "provider reported no groups",
		})
		return nil
	}

	// The empty directory is accepted as truth: every stored group converges
	// to an empty member set.
	storedGroupIDs, err := r.store.Groups(ctx, directory.ID)
	if err != nil {
		r.observer.Observe(ctx, &Observation{
			Kind:        KindDirectoryFailed,
			DirectoryID: directory.ID,
			Reason:      "list stored groups",
			Err:         err,
		})
		return fmt.Errorf("directory %s: failed to list stored groups: %w", directory.ID, err)
	}
	r.observer.Observe(ctx, &Observation{
		Kind:        KindEmptyHonored,
		DirectoryID: directory.ID,
		Count:       streak,
		Reason:      "provider reported no groups",
	})
	stored := make([]*Group, 0, len(storedGroupIDs))
	for _, id := range storedGroupIDs {
		stored = append(stored, &Group{ID: id})
	}
	return r.reconcileGroups(ctx, emptyAdapter{}, directory, stored, true)
}

func (r *Reconciler) reconcileGroups(ctx context.Context, adapter ProviderAdapter, directory *Directory, groups []*Group, trustEmpty bool) error {
	if err := concurrentFunc(ctx, groups, r.groupWorkers, func(ctx context.Context, group *Group) error {
		return r.reconcileGroup(ctx, adapter, directory, group, trustEmpty)
	}); err != nil {
		return fmt.Errorf("directory %s: failed to reconcile one or more groups: %w", directory.ID, err)
	}
	return nil
}

func (r *Reconciler) reconcileGroup(ctx context.Context, adapter ProviderAdapter, directory *Directory, group *Group, trustEmpty bool) (retErr error) {
	key := groupKey(directory.ID, group.ID)
	release, ok := r.flights.tryAcquire(key)
	if !ok {
		r.observer.Observe(ctx, &Observation{
			Kind:        KindGroupSkipped,
			DirectoryID: directory.ID,
			GroupID:     group.ID,
			Reason:      "reconciliation already in flight",
		})
		return nil
	}
	defer release()

	logger := logging.FromContext(ctx).With("group_id", group.ID)
	ctx = logging.WithLogger(ctx, logger)

	defer func() {
		if p := recover(); p != nil {
			retErr = fmt.Errorf("panic while reconciling group %s: %v", group.ID, p)
			r.observer.Observe(ctx, &Observation{Kind: KindGroupFailed, DirectoryID: directory.ID, GroupID: group.ID, Err: retErr})
		}
	}()

	members, err := r.fetchMembers(ctx, adapter, directory, group)
	if err != nil {
		r.observer.Observe(ctx, &Observation{
			Kind:        KindGroupFailed,
			DirectoryID: directory.ID,
			GroupID:     group.ID,
			Reason:      "fetch members",
			Err:         err,
		})
		return fmt.Errorf("group %s: failed to fetch members: %w", group.ID, err)
	}
	providerIDs := MemberIDs(members)

	storedIDs, err := r.store.Members(ctx, directory.ID, group.ID)
	if err != nil {
		r.observer.Observe(ctx, &Observation{
			Kind:        KindGroupFailed,
			DirectoryID: directory.ID,
			GroupID:     group.ID,
			Reason:      "read stored members",
			Err:         err,
		})
		return fmt.Errorf("group %s: failed to read stored members: %w", group.ID, err)
	}

	if len(providerIDs) == 0 && len(storedIDs) > 0 && !trustEmpty {
		honored, streak := r.emptyPolicy.Observe(key)
		if !honored {
			r.observer.Observe(ctx, &Observation{
				Kind:        KindEmptyGuarded,
				DirectoryID: directory.ID,
				GroupID:     group.ID,
				Count:       streak,
				Reason:      "provider reported no members",
			})
			return nil
		}
		r.observer.Observe(ctx, &Observation{
			Kind:        KindEmptyHonored,
			DirectoryID: directory.ID,
			GroupID:     group.ID,
			Count:       streak,
			Reason:      "provider reported no members",
		})
	} else if len(providerIDs) > 0 {
		r.emptyPolicy.Reset(key)
	}

	diff := ComputeDiff(storedIDs, providerIDs)
	if diff.Empty() {
		return nil
	}

	next := storedIDs.Clone()
	var merr error
	for _, payload := range TranslateDiff(group.ID, diff) {
		if _, err := r.dispatcher.Dispatch(ctx, directory, group, payload); err != nil {
			r.observer.Observe(ctx, &Observation{
				Kind:        KindDispatchFailed,
				DirectoryID: directory.ID,
				GroupID:     group.ID,
				Operation:   payload.Operation,
				Count:       len(payload.MemberIDs),
				Err:         err,
			})
			merr = errors.Join(merr, err)
			continue
		}
		r.observer.Observe(ctx, &Observation{
			Kind:        KindDispatched,
			DirectoryID: directory.ID,
			GroupID:     group.ID,
			Operation:   payload.Operation,
			Count:       len(payload.MemberIDs),
		})
		apply(next, payload)
	}

	if next.Equal(storedIDs) {
		return merr
	}
	if err := r.store.SetMembers(ctx, directory.ID, group.ID, next); err != nil {
		r.observer.Observe(ctx, &Observation{
			Kind:        KindGroupFailed,
			DirectoryID: directory.ID,
			GroupID:     group.ID,
			Reason:      "store members",
			Err:         err,
		})
		return errors.Join(merr, fmt.Errorf("group %s: failed to store members: %w", group.ID, err))
	}
	r.observer.Observe(ctx, &Observation{
		Kind:        KindStoreUpdated,
		DirectoryID: directory.ID,
		GroupID:     group.ID,
		Count:       len(next),
	})
	return merr
}

func (r *Reconciler) fetchGroups(ctx context.Context, adapter ProviderAdapter, directory *Directory) ([]*Group, error) {
	ctx, cancel := r.withFetchTimeout(ctx)
	defer cancel()
	return adapter.Groups(ctx, directory) //nolint:wrapcheck // Want passthrough
}

func (r *Reconciler) fetchMembers(ctx context.Context, adapter ProviderAdapter, directory *Directory, group *Group) ([]*Member, error) {
	ctx, cancel := r.withFetchTimeout(ctx)
	defer cancel()
	return adapter.GroupMembers(ctx, directory, group) //nolint:wrapcheck // Want passthrough
}

func (r *Reconciler) withFetchTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.fetchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.fetchTimeout)
}

// apply mutates ids with a payload that was dispatched successfully.
func apply(ids MemberIDSet, payload *ChangePayload) {
	for _, id := range payload.MemberIDs {
		switch payload.Operation {
		case OperationAdd:
			ids[id] = struct{}{}
		case OperationRemove:
			delete(ids, id)
		}
	}
}

// emptyAdapter reports no groups and no members. It stands in for the
// provider of a directory whose empty result was honored.
type emptyAdapter struct{}

func (emptyAdapter) Groups(context.Context, *Directory) ([]*Group, error) {
	return nil, nil
}

func (emptyAdapter) GroupMembers(context.Context, *Directory, *Group) ([]*Member, error) {
	return nil, nil
}
