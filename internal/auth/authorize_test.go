package auth

import "testing"

func companyUser(roles ...Role) *UserProfile {
	return &UserProfile{
		Name:    "Ana",
		Email:   "ana@example.com",
		Company: &CompanyRef{ID: 7, Name: "Ferretería Sur"},
		Roles:   roles,
	}
}

func superadmin(roles ...Role) *UserProfile {
	return &UserProfile{Name: "Root", Email: "root@example.com", Roles: roles}
}

func TestHasPermissionSuperadminBypass(t *testing.T) {
	p := superadmin(Role{ID: 1, Name: "global"})
	for _, code := range []string{"", PermSalesView, "does_not_exist_anywhere"} {
		if !HasPermission(p, code) {
			t.Fatalf("superadmin denied %q", code)
		}
	}
}

func TestHasPermissionNoRoles(t *testing.T) {
	for _, p := range []*UserProfile{nil, companyUser(), superadmin()} {
		for _, code := range []string{"", PermSalesView} {
			if HasPermission(p, code) {
				t.Fatalf("expected %q denied for %+v", code, p)
			}
		}
	}
}

func TestHasPermissionByCodeMap(t *testing.T) {
	p := companyUser(Role{ID: 2, Name: "cajero", ByCode: map[string]bool{PermSalesView: true}})
	if !HasPermission(p, PermSalesView) {
		t.Fatal("expected ventas_ver granted")
	}
	if HasPermission(p, PermPurchasesView) {
		t.Fatal("expected compras_ver denied")
	}
}

func TestHasPermissionFalseMapEntry(t *testing.T) {
	p := companyUser(Role{ID: 2, ByCode: map[string]bool{PermSalesView: false}})
	if HasPermission(p, PermSalesView) {
		t.Fatal("a false map entry must not grant")
	}
}

func TestHasPermissionByGrantSet(t *testing.T) {
	p := companyUser(Role{ID: 3, Name: "vendedor", Grants: []PermissionGrant{{Code: PermSalesView}}})
	if !HasPermission(p, PermSalesView) {
		t.Fatal("expected grant set to be honoured")
	}
	if HasPermission(p, PermPurchasesView) {
		t.Fatal("expected compras_ver denied")
	}
}

func TestHasPermissionUnionAcrossRoles(t *testing.T) {
	p := companyUser(
		Role{ID: 1, ByCode: map[string]bool{PermSalesView: true}},
		Role{ID: 2, Grants: []PermissionGrant{{Code: PermPurchasesView}}},
		Role{ID: 3},
	)
	if !HasPermission(p, PermSalesView) || !HasPermission(p, PermPurchasesView) {
		t.Fatal("expected union of role grants")
	}
	if HasPermission(p, PermRolesView) {
		t.Fatal("unexpected grant")
	}
}

func TestHasAnyAndAllPermissions(t *testing.T) {
	p := companyUser(Role{ID: 1, Grants: []PermissionGrant{{Code: PermSalesView}, {Code: PermPurchasesView}}})

	cases := []struct {
		name  string
		codes []string
		any   bool
		all   bool
	}{
		{"empty", nil, false, true},
		{"one granted", []string{PermSalesView}, true, true},
		{"both granted", []string{PermSalesView, PermPurchasesView}, true, true},
		{"mixed", []string{PermRolesView, PermSalesView}, true, false},
		{"none granted", []string{PermRolesView, PermUsersView}, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasAnyPermission(p, tc.codes); got != tc.any {
				t.Errorf("HasAnyPermission(%v) = %v, want %v", tc.codes, got, tc.any)
			}
			if got := HasAllPermissions(p, tc.codes); got != tc.all {
				t.Errorf("HasAllPermissions(%v) = %v, want %v", tc.codes, got, tc.all)
			}
		})
	}
}

func TestHasAnyAndAllSuperadminEmptyList(t *testing.T) {
	p := superadmin(Role{ID: 1})
	if !HasAnyPermission(p, nil) {
		t.Fatal("superadmin HasAnyPermission([]) should be true")
	}
	if !HasAllPermissions(p, []string{}) {
		t.Fatal("superadmin HasAllPermissions([]) should be true")
	}
}

func TestHasAnyAndAllWithoutProfile(t *testing.T) {
	if HasAnyPermission(nil, nil) || HasAllPermissions(nil, nil) {
		t.Fatal("nil profile must never be granted")
	}
	if HasAllPermissions(companyUser(), nil) {
		t.Fatal("role-less profile must never be granted")
	}
}
