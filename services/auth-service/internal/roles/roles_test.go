package roles

import "testing"

func TestKnown(t *testing.T) {
	for _, r := range []string{Owner, Staff, Admin} {
		if !Known(r) {
			t.Errorf("role %q should be known", r)
		}
	}
	for _, r := range []string{"", "manager", "OWNER"} {
		if Known(r) {
			t.Errorf("role %q should be unknown", r)
		}
	}
}

func TestCanManageUsers(t *testing.T) {
	if !CanManageUsers(Owner) || !CanManageUsers(Admin) {
		t.Error("owner and admin manage users")
	}
	if CanManageUsers(Staff) {
		t.Error("staff must not manage users")
	}
}
