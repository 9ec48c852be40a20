package enums

import "fmt"

// MaterialKind classifies the item held in custody.
type MaterialKind string

const (
	MaterialKindConsumable MaterialKind = "consumable"
	MaterialKindDurable    MaterialKind = "durable"
)

var validMaterialKinds = []MaterialKind{
	MaterialKindConsumable,
	MaterialKindDurable,
}

// String implements fmt.Stringer.
func (m MaterialKind) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MaterialKind.
func (m MaterialKind) IsValid() bool {
	for _, candidate := range validMaterialKinds {
		if candidate == m {
			return true
		}
	}
	return false
}

// SupportsReturn reports whether records of this kind can enter a return cycle.
func (m MaterialKind) SupportsReturn() bool {
	return m == MaterialKindDurable
}

// ParseMaterialKind converts raw input into a MaterialKind.
func ParseMaterialKind(value string) (MaterialKind, error) {
	for _, candidate := range validMaterialKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid material kind %q", value)
}
