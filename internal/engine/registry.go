// Package engine posts approved staging movements into the ledger.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Veraticus/backoffice-ledger/internal/common"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/Veraticus/backoffice-ledger/internal/service"
	"github.com/shopspring/decimal"
)

// Registry resolves operation references to active operation types.
type Registry struct {
	reader   service.OperationTypeReader
	snapshot []model.OperationType
	mu       sync.RWMutex
	loaded   bool
}

// NewRegistry creates a registry reading from reader.
func NewRegistry(reader service.OperationTypeReader) *Registry {
	return &Registry{reader: reader}
}

// Load takes a snapshot of the active operation types. A batch loads once so
// every record in it resolves against the same configuration.
func (r *Registry) Load(ctx context.Context) error {
	types, err := r.reader.GetActiveOperationTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load operation types: %w", err)
	}

	r.mu.Lock()
	r.snapshot = types
	r.loaded = true
	r.mu.Unlock()
	return nil
}

func (r *Registry) ensureLoaded(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	return r.Load(ctx)
}

func (r *Registry) types(ctx context.Context) ([]model.OperationType, error) {
	r.mu.RLock()
	if r.loaded {
		defer r.mu.RUnlock()
		return r.snapshot, nil
	}
	r.mu.RUnlock()

	types, err := r.reader.GetActiveOperationTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load operation types: %w", err)
	}
	return types, nil
}

// Resolve finds the one active operation type ref points at. External refs
// are matched on (code, direction) where direction comes from the sign of
// signedAmount. More than one match is an error, never a silent pick.
func (r *Registry) Resolve(ctx context.Context, ref model.OperationRef, signedAmount decimal.Decimal) (*model.OperationType, error) {
	types, err := r.types(ctx)
	if err != nil {
		return nil, err
	}

	switch ref.Kind {
	case model.RefInternal:
		return resolveInternal(types, ref.Code)
	case model.RefExternal:
		dir, ok := model.DirectionOf(signedAmount)
		if !ok {
			return nil, common.NewPostingError(common.CodeZeroAmount, 0, "zero amount has no direction for external type %d", ref.ExternalType)
		}
		return resolveExternal(types, ref.ExternalType, dir)
	default:
		return nil, common.NewPostingError(common.CodeUnknownOperationCode, 0, "missing operation reference")
	}
}

func resolveInternal(types []model.OperationType, code string) (*model.OperationType, error) {
	var found []model.OperationType
	for _, t := range types {
		if t.Code == code {
			found = append(found, t)
		}
	}

	switch len(found) {
	case 0:
		return nil, common.NewPostingError(common.CodeUnknownOperationCode, 0, "no active operation type with code %q", code)
	case 1:
		return &found[0], nil
	default:
		return nil, common.NewPostingError(common.CodeAmbiguousMapping, 0, "%d active operation types share code %q", len(found), code)
	}
}

func resolveExternal(types []model.OperationType, code int, dir model.Direction) (*model.OperationType, error) {
	var found []model.OperationType
	for _, t := range types {
		if t.Matches(code, dir) {
			found = append(found, t)
		}
	}

	switch len(found) {
	case 0:
		return nil, common.NewPostingError(common.CodeUnmappedExternalType, 0, "no active operation type maps external type %d (%s)", code, dir)
	case 1:
		return &found[0], nil
	default:
		codes := make([]string, len(found))
		for i, t := range found {
			codes[i] = t.Code
		}
		return nil, common.NewPostingError(common.CodeAmbiguousMapping, 0, "external type %d (%s) maps to %v", code, dir, codes)
	}
}

// MappingConflict is an external (code, direction) claimed by several active types.
type MappingConflict struct {
	Codes   []string
	Mapping model.ExternalTypeMapping
}

// ValidateMappings reports every external mapping that would resolve
// ambiguously. Inactive types are ignored.
func ValidateMappings(types []model.OperationType) []MappingConflict {
	owners := make(map[model.ExternalTypeMapping][]string)
	for _, t := range types {
		if !t.Active {
			continue
		}
		for _, m := range t.ExternalMappings {
			owners[m] = append(owners[m], t.Code)
		}
	}

	var conflicts []MappingConflict
	for m, codes := range owners {
		if len(codes) > 1 {
			sort.Strings(codes)
			conflicts = append(conflicts, MappingConflict{Mapping: m, Codes: codes})
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		a, b := conflicts[i].Mapping, conflicts[j].Mapping
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Direction < b.Direction
	})
	return conflicts
}
