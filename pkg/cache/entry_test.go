package cache

import (
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{name: "expired entry", expires: time.Now().Add(-1 * time.Hour), want: true},
		{name: "valid entry", expires: time.Now().Add(1 * time.Hour), want: false},
		{name: "just expired", expires: time.Now().Add(-1 * time.Second), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	entry := &Entry{Expires: time.Now().Add(-time.Minute)}
	if ttl := entry.TTL(); ttl != 0 {
		t.Errorf("TTL() of expired entry = %v, want 0", ttl)
	}

	entry.Expires = time.Now().Add(time.Hour)
	if ttl := entry.TTL(); ttl <= 59*time.Minute || ttl > time.Hour {
		t.Errorf("TTL() = %v, want about 1h", ttl)
	}
}

func TestEntry_HasValidator(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  bool
	}{
		{name: "none", entry: Entry{}, want: false},
		{name: "etag", entry: Entry{ETag: `"abc"`}, want: true},
		{name: "last modified", entry: Entry{LastModified: time.Now()}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.HasValidator(); got != tt.want {
				t.Errorf("HasValidator() = %v, want %v", got, tt.want)
			}
		})
	}
}
