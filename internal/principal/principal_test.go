package principal

import (
	"context"
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	cases := []struct {
		raw  string
		want Role
	}{
		{"parent", RoleParent},
		{" Staff ", RoleStaff},
		{"SCHOOL_ADMIN", RoleSchoolAdmin},
		{"platform_owner", RolePlatformOwner},
	}
	for _, tc := range cases {
		got, err := ParseRole(tc.raw)
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseRole(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
	if _, err := ParseRole("superuser"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestValidRequiresTenantForSchoolRoles(t *testing.T) {
	p := Principal{Subject: "u-1", Role: RoleParent}
	if p.Valid() {
		t.Fatal("parent without school id should not be valid")
	}
	p.SchoolID = "school-1"
	if !p.Valid() {
		t.Fatal("parent with school id should be valid")
	}
}

func TestValidRejectsTenantBoundOwner(t *testing.T) {
	p := Principal{Subject: "o-1", Role: RolePlatformOwner, SchoolID: "school-1"}
	if p.Valid() {
		t.Fatal("platform owner must not carry a school id")
	}
	p.SchoolID = ""
	if !p.Valid() {
		t.Fatal("platform owner without school id should be valid")
	}
}

func TestHasRole(t *testing.T) {
	p := Principal{Subject: "u-1", Role: RoleStaff, SchoolID: "school-1"}
	if !p.HasRole(RoleSchoolAdmin, RoleStaff) {
		t.Fatal("expected staff to match allowed set")
	}
	if p.HasRole(RoleParent) {
		t.Fatal("staff should not match parent-only set")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx); ok {
		t.Fatal("empty context should carry no principal")
	}
	want := Principal{Subject: "u-9", Role: RoleParent, SchoolID: "school-2"}
	ctx = ContextWith(ctx, want)
	got, ok := FromContext(ctx)
	if !ok || got != want {
		t.Fatalf("unexpected principal: %+v, ok=%v", got, ok)
	}
}
