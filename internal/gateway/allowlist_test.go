package gateway

import "testing"

func TestAllowList_Allows(t *testing.T) {
	list := DefaultAllowList
	cases := []struct {
		path string
		want bool
	}{
		{"users/me", true},
		{"users/", true},
		{"scanner/scan", true},
		{"scanner/history?page=2", true},
		{"stats/dead-index", true},
		{"admin/delete-everything", false},
		{"webhooks/stripe", false},
		{"", false},
		{"users", false},        // prefix includes the slash
		{"usersx/me", false},    // no partial-segment matches
		{"/users/me", false},    // absolute paths rejected, not normalized
		{"users/../admin", false},
		{"scanner/..", false},
	}
	for _, tc := range cases {
		if got := list.Allows(tc.path); got != tc.want {
			t.Errorf("Allows(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestAllowList_Empty(t *testing.T) {
	var list AllowList
	if list.Allows("users/me") {
		t.Error("empty allow-list should reject everything")
	}
}
