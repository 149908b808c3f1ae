package enums

// StaffRole is the back-office role carried in staff access tokens.
type StaffRole string

const (
	StaffRoleManager StaffRole = "manager"
	StaffRoleCashier StaffRole = "cashier"
	StaffRoleKitchen StaffRole = "kitchen"
	StaffRoleSystem  StaffRole = "system"
)

var validStaffRoles = []StaffRole{
	StaffRoleManager,
	StaffRoleCashier,
	StaffRoleKitchen,
	StaffRoleSystem,
}

// String implements fmt.Stringer.
func (s StaffRole) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StaffRole.
func (s StaffRole) IsValid() bool {
	return oneOf(s, validStaffRoles)
}

// ParseStaffRole converts raw input into a StaffRole.
func ParseStaffRole(value string) (StaffRole, error) {
	return parse("staff role", value, validStaffRoles)
}
