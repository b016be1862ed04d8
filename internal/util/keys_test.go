package util

import "testing"

func TestStorageKeyRoundTrip(t *testing.T) {
	sk := StorageKey("swr", "salon", "appointments:today")
	if sk != "swr:salon:appointments:today" {
		t.Fatalf("unexpected storage key %q", sk)
	}
	k, ok := LogicalKey("swr", "salon", sk)
	if !ok || k != "appointments:today" {
		t.Fatalf("LogicalKey: ok=%v k=%q", ok, k)
	}
}

func TestLogicalKeyForeignNamespace(t *testing.T) {
	if _, ok := LogicalKey("swr", "salon", "swr:other:x"); ok {
		t.Fatalf("foreign namespace must not map to a logical key")
	}
}
