package enums

// UserRole is the role claim carried by access tokens.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	// UserRoleVendor tokens always carry the vendor they act for.
	UserRoleVendor UserRole = "vendor"
	UserRoleAdmin  UserRole = "admin"
)

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleCustomer, UserRoleVendor, UserRoleAdmin:
		return true
	}
	return false
}
