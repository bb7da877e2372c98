package util

import "testing"

func TestRevisionID(t *testing.T) {
	id := RevisionID(3, []int64{1, 2}, "alice", "merge", 1000)
	if len(id) != 64 {
		t.Fatalf("id length = %d, want 64", len(id))
	}
	if again := RevisionID(3, []int64{1, 2}, "alice", "merge", 1000); again != id {
		t.Errorf("same inputs gave different ids: %s vs %s", id, again)
	}
	if other := RevisionID(3, []int64{2, 1}, "alice", "merge", 1000); other == id {
		t.Errorf("parent order did not change the id")
	}
	if other := RevisionID(3, []int64{1, 2}, "alice\x00merge", "", 1000); other == id {
		t.Errorf("user/desc boundary shift did not change the id")
	}
}

func TestIsHexPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0", true},
		{"abc", true},
		{"deadbeef", true},
		{"0123456789abcdef", true},
		{"", false},
		{"g", false},
		{"ABC", false},
		{"12 34", false},
		{"abc!", false},
	}
	for _, tt := range tests {
		if got := IsHexPrefix(tt.in); got != tt.want {
			t.Errorf("IsHexPrefix(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
