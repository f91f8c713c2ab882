package model

import "fmt"

// RefKind tells which variant an OperationRef holds.
type RefKind int

// RefKind constants.
const (
	RefInternal RefKind = iota + 1
	RefExternal
)

// OperationRef points at an operation type either by internal canonical code
// or by the processor's numeric transaction type. The variant is decided once,
// when the staging row is created.
type OperationRef struct {
	Code         string
	ExternalType int
	Kind         RefKind
}

// InternalRef references an operation type by canonical code.
func InternalRef(code string) OperationRef {
	return OperationRef{Kind: RefInternal, Code: code}
}

// ExternalRef references an operation type by external numeric type.
func ExternalRef(externalType int) OperationRef {
	return OperationRef{Kind: RefExternal, ExternalType: externalType}
}

// IsInternal reports whether the reference is an internal code.
func (r OperationRef) IsInternal() bool { return r.Kind == RefInternal }

// IsExternal reports whether the reference is an external numeric type.
func (r OperationRef) IsExternal() bool { return r.Kind == RefExternal }

// IsZero reports whether the reference was never set.
func (r OperationRef) IsZero() bool { return r.Kind == 0 }

func (r OperationRef) String() string {
	switch r.Kind {
	case RefInternal:
		return r.Code
	case RefExternal:
		return fmt.Sprintf("ext:%d", r.ExternalType)
	default:
		return "<none>"
	}
}
