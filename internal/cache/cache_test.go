package cache

import "testing"

func TestKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			"entity key without parts",
			NewKey("tenant-1", "levels"),
			"inventory:tenant-1:levels",
		},
		{
			"full level key",
			NewKey("tenant-1", "levels", "prod-1", "-", "loc-1"),
			"inventory:tenant-1:levels:prod-1:-:loc-1",
		},
		{
			"valuation key with method",
			NewKey("tenant-1", "valuation", "prod-1", "red", "loc-1", "fifo", "latest"),
			"inventory:tenant-1:valuation:prod-1:red:loc-1:fifo:latest",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEntityPatternMatchesWrittenKeys(t *testing.T) {
	key := NewKey("tenant-1", "valuation", "prod-1", "-", "loc-1", "fifo", "latest")
	pattern := entityPattern("tenant-1", "valuation")

	if pattern != "inventory:tenant-1:valuation:*" {
		t.Fatalf("pattern = %q", pattern)
	}
	prefix := pattern[:len(pattern)-1]
	if got := key.String(); len(got) < len(prefix) || got[:len(prefix)] != prefix {
		t.Errorf("key %q does not match invalidation pattern %q", got, pattern)
	}
}
