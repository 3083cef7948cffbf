package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".chatsync", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestCacheDBPath(t *testing.T) {
	got := CacheDBPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "chat.db")) {
		t.Errorf("CacheDBPath(test) = %q, want suffix sessions/test/chat.db", got)
	}
}

func TestLockPath(t *testing.T) {
	got := LockPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "LOCK")) {
		t.Errorf("LockPath(test) = %q, want suffix sessions/test/LOCK", got)
	}
}

func TestCredentialsPath(t *testing.T) {
	got := CredentialsPath("test")
	if !strings.HasSuffix(got, filepath.Join("sessions", "test", "credentials.json")) {
		t.Errorf("CredentialsPath(test) = %q, want suffix sessions/test/credentials.json", got)
	}
}
