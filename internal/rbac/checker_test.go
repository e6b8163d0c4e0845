package rbac

import "testing"

func TestDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)

	cases := []struct {
		role, perm string
		want       bool
	}{
		{"student", "attempt:start", true},
		{"student", "attempt:save", true},
		{"student", "attempt:view-all", false},
		{"student", "attempt:grade", false},
		{"student", "test:create", false},
		{"teacher", "attempt:grade", true},
		{"teacher", "attempt:view-all", true},
		{"teacher", "attempt:start", false}, // teachers don't sit tests
		{"admin", "attempt:grade", true},    // wildcard
		{"admin", "anything:at-all", true},
		{"", "attempt:start", false},
		{"ghost-role", "attempt:start", false},
	}
	for _, tc := range cases {
		if got := c.Has(tc.role, tc.perm); got != tc.want {
			t.Errorf("Has(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestCheckerAnyAndPrefixMatch(t *testing.T) {
	c := NewChecker(map[string][]string{
		"auditor": {"attempt:view-own", "users:*"},
	})
	if !c.Any("auditor", "attempt:view-all", "attempt:view-own") {
		t.Fatal("Any missed a held permission")
	}
	if c.Any("auditor", "attempt:grade", "test:create") {
		t.Fatal("Any granted an unheld permission")
	}
	if !c.Has("auditor", "users:list") {
		t.Fatal("prefix wildcard did not match")
	}
	if c.Has("auditor", "user:change_password") {
		t.Fatal("users:* matched outside its prefix")
	}
}
