package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/Veraticus/backoffice-ledger/internal/common"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTypes struct {
	err   error
	types []model.OperationType
	calls int
}

func (s *staticTypes) GetActiveOperationTypes(context.Context) ([]model.OperationType, error) {
	s.calls++
	return s.types, s.err
}

func opType(id int64, code string, mappings ...model.ExternalTypeMapping) model.OperationType {
	return model.OperationType{
		ID:               id,
		Code:             code,
		AvailableSign:    model.SignPlus,
		BlockedSign:      model.SignPlus,
		ExternalMappings: mappings,
		Active:           true,
	}
}

func in(code int) model.ExternalTypeMapping {
	return model.ExternalTypeMapping{Code: code, Direction: model.DirectionIn}
}

func out(code int) model.ExternalTypeMapping {
	return model.ExternalTypeMapping{Code: code, Direction: model.DirectionOut}
}

func TestRegistry_Resolve(t *testing.T) {
	reader := &staticTypes{types: []model.OperationType{
		opType(1, "DEPOSIT", in(10)),
		opType(2, "WITHDRAWAL", out(10), out(11)),
		opType(3, "FEE", out(11)),
		opType(4, "DUP"),
		opType(5, "DUP"),
	}}
	registry := NewRegistry(reader)
	require.NoError(t, registry.Load(context.Background()))

	tests := []struct {
		wantErr error
		name    string
		amount  string
		ref     model.OperationRef
		wantID  int64
	}{
		{name: "internal code", ref: model.InternalRef("DEPOSIT"), amount: "1", wantID: 1},
		{name: "internal code ignores direction", ref: model.InternalRef("WITHDRAWAL"), amount: "1", wantID: 2},
		{name: "unknown internal code", ref: model.InternalRef("NOPE"), amount: "1", wantErr: common.ErrUnknownOperationCode},
		{name: "duplicate internal code", ref: model.InternalRef("DUP"), amount: "1", wantErr: common.ErrAmbiguousMapping},
		{name: "external money in", ref: model.ExternalRef(10), amount: "5", wantID: 1},
		{name: "external money out", ref: model.ExternalRef(10), amount: "-5", wantID: 2},
		{name: "external unmapped direction", ref: model.ExternalRef(11), amount: "5", wantErr: common.ErrUnmappedExternalType},
		{name: "external unmapped code", ref: model.ExternalRef(99), amount: "-5", wantErr: common.ErrUnmappedExternalType},
		{name: "external ambiguous", ref: model.ExternalRef(11), amount: "-5", wantErr: common.ErrAmbiguousMapping},
		{name: "external zero amount", ref: model.ExternalRef(10), amount: "0", wantErr: common.ErrZeroAmount},
		{name: "missing ref", ref: model.OperationRef{}, amount: "1", wantErr: common.ErrUnknownOperationCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := registry.Resolve(context.Background(), tt.ref, dec(tt.amount))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}

	assert.Equal(t, 1, reader.calls, "resolution must use the loaded snapshot")
}

func TestRegistry_UnmappedMessageNamesCode(t *testing.T) {
	registry := NewRegistry(&staticTypes{})

	_, err := registry.Resolve(context.Background(), model.ExternalRef(42), dec("-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UnmappedExternalType")
	assert.Contains(t, err.Error(), "42")
}

func TestRegistry_LoadError(t *testing.T) {
	boom := errors.New("boom")
	registry := NewRegistry(&staticTypes{err: boom})

	assert.ErrorIs(t, registry.Load(context.Background()), boom)

	_, err := registry.Resolve(context.Background(), model.InternalRef("X"), dec("1"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, common.CodeInternal, common.CodeOf(err))
}

func TestValidateMappings(t *testing.T) {
	inactive := opType(9, "LEGACY", in(1))
	inactive.Active = false

	conflicts := ValidateMappings([]model.OperationType{
		opType(1, "B", in(1), out(2)),
		opType(2, "A", in(1)),
		opType(3, "C", out(2), in(3)),
		inactive,
	})

	require.Len(t, conflicts, 2)
	assert.Equal(t, in(1), conflicts[0].Mapping)
	assert.Equal(t, []string{"A", "B"}, conflicts[0].Codes)
	assert.Equal(t, out(2), conflicts[1].Mapping)
	assert.Equal(t, []string{"B", "C"}, conflicts[1].Codes)

	assert.Empty(t, ValidateMappings([]model.OperationType{opType(1, "A", in(1)), opType(2, "B", out(1))}))
}
