package auth

// HasPermission reports whether profile may use the capability named code.
// A nil or role-less profile has no permissions; a superadmin has all of
// them; anyone else needs a role granting code.
func HasPermission(profile *UserProfile, code string) bool {
	if profile == nil || len(profile.Roles) == 0 {
		return false
	}
	if profile.Company == nil {
		return true
	}
	for _, role := range profile.Roles {
		if role.Allows(code) {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether at least one of codes is granted.
// An empty codes list is false except for a superadmin.
func HasAnyPermission(profile *UserProfile, codes []string) bool {
	if profile == nil || len(profile.Roles) == 0 {
		return false
	}
	if profile.Company == nil {
		return true
	}
	for _, code := range codes {
		if HasPermission(profile, code) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every one of codes is granted.
// An empty codes list is true for any profile holding at least one role.
func HasAllPermissions(profile *UserProfile, codes []string) bool {
	if profile == nil || len(profile.Roles) == 0 {
		return false
	}
	if profile.Company == nil {
		return true
	}
	for _, code := range codes {
		if !HasPermission(profile, code) {
			return false
		}
	}
	return true
}
