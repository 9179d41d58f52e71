package model

import "testing"

func TestRoleAtLeast(t *testing.T) {
	tests := []struct {
		role, minimum string
		want          bool
	}{
		{RoleAdmin, RoleManager, true},
		{RoleAdmin, RoleUser, true},
		{RoleManager, RoleManager, true},
		{RoleManager, RoleAdmin, false},
		{RoleUser, RoleUser, true},
		{RoleUser, RoleManager, false},
		// Unknown roles never pass.
		{"auditor", RoleUser, false},
		{RoleAdmin, "auditor", false},
		{"", "", false},
	}

	for _, tt := range tests {
		if got := RoleAtLeast(tt.role, tt.minimum); got != tt.want {
			t.Errorf("RoleAtLeast(%q, %q) = %v, want %v", tt.role, tt.minimum, got, tt.want)
		}
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleAdmin, RoleManager, RoleUser} {
		if !ValidRole(role) {
			t.Errorf("ValidRole(%q) = false", role)
		}
	}
	for _, role := range []string{"", "Admin", "approver"} {
		if ValidRole(role) {
			t.Errorf("ValidRole(%q) = true", role)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("1234567"); err == nil {
		t.Error("expected error for 7 character password")
	}
	if err := ValidatePassword("12345678"); err != nil {
		t.Errorf("unexpected error for 8 character password: %v", err)
	}
}

func TestTransferTypeDimensions(t *testing.T) {
	tests := []struct {
		typ                    TransferType
		user, dept, loc, valid bool
	}{
		{TransferUser, true, false, false, true},
		{TransferDepartment, false, true, false, true},
		{TransferLocation, false, false, true, true},
		{TransferComplete, true, true, true, true},
		{"OWNER", false, false, false, false},
	}

	for _, tt := range tests {
		if got := tt.typ.Valid(); got != tt.valid {
			t.Errorf("%s.Valid() = %v, want %v", tt.typ, got, tt.valid)
		}
		if tt.typ.MovesUser() != tt.user || tt.typ.MovesDepartment() != tt.dept || tt.typ.MovesLocation() != tt.loc {
			t.Errorf("%s moves user=%v dept=%v loc=%v, want %v %v %v", tt.typ,
				tt.typ.MovesUser(), tt.typ.MovesDepartment(), tt.typ.MovesLocation(), tt.user, tt.dept, tt.loc)
		}
	}
}
