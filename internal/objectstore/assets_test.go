package objectstore

import "testing"

func TestUploadKeyAndAssetURLRoundTrip(t *testing.T) {
	key := UploadKey("sess-1", 1700000000000000000, "png")
	if key != "uploads/sess-1/1700000000000000000.png" {
		t.Fatalf("unexpected key: %q", key)
	}
	if got, want := AssetURL(key), "/api/assets/sess-1/1700000000000000000.png"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestAssetURLEmptyOnMalformedKey(t *testing.T) {
	for _, key := range []string{"", "not-an-upload-key", "uploads/only-sid"} {
		if got := AssetURL(key); got != "" {
			t.Fatalf("key %q: expected empty URL, got %q", key, got)
		}
	}
}
