package enums

import "fmt"

// SignatureRole classifies a signature event as the checkout or the return.
type SignatureRole string

const (
	SignatureRoleCheckout SignatureRole = "checkout"
	SignatureRoleReturn   SignatureRole = "return"
)

var validSignatureRoles = []SignatureRole{
	SignatureRoleCheckout,
	SignatureRoleReturn,
}

// String implements fmt.Stringer.
func (r SignatureRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known SignatureRole.
func (r SignatureRole) IsValid() bool {
	for _, candidate := range validSignatureRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseSignatureRole converts raw input into a SignatureRole.
func ParseSignatureRole(value string) (SignatureRole, error) {
	for _, candidate := range validSignatureRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid signature role %q", value)
}
