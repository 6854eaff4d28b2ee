package fingerprint_test

import (
	"testing"

	"syndicate/internal/accounts"
	"syndicate/internal/fingerprint"
)

func TestComputeIsDeterministic(t *testing.T) {
	first := fingerprint.Compute("/videos/ep1.mp4", accounts.PlatformYouTube, "main", accounts.KindLong)
	second := fingerprint.Compute("/videos/ep1.mp4", accounts.PlatformYouTube, "main", accounts.KindLong)
	if first != second {
		t.Fatalf("same inputs produced different fingerprints: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected hex sha256 digest, got %q", first)
	}
}

func TestComputeVariesPerField(t *testing.T) {
	base := fingerprint.Compute("/videos/ep1.mp4", accounts.PlatformYouTube, "main", accounts.KindLong)

	cases := []struct {
		name     string
		artifact string
		platform accounts.Platform
		account  string
		kind     accounts.Kind
	}{
		{"artifact", "/videos/ep2.mp4", accounts.PlatformYouTube, "main", accounts.KindLong},
		{"platform", "/videos/ep1.mp4", accounts.PlatformTikTok, "main", accounts.KindLong},
		{"account", "/videos/ep1.mp4", accounts.PlatformYouTube, "backup", accounts.KindLong},
		{"kind", "/videos/ep1.mp4", accounts.PlatformYouTube, "main", accounts.KindShorts},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := fingerprint.Compute(tc.artifact, tc.platform, tc.account, tc.kind)
			if got == base {
				t.Fatalf("changing %s did not change the fingerprint", tc.name)
			}
		})
	}
}

func TestComputeFieldBoundaries(t *testing.T) {
	// Length prefixing keeps adjacent fields from merging into the same digest.
	a := fingerprint.Compute("ab", accounts.PlatformFeed, "c", accounts.KindLong)
	b := fingerprint.Compute("a", accounts.PlatformFeed, "bc", accounts.KindLong)
	if a == b {
		t.Fatal("field boundaries collided")
	}
}

func TestComputeTrimsWhitespace(t *testing.T) {
	plain := fingerprint.Compute("/videos/ep1.mp4", accounts.PlatformYouTube, "main", accounts.KindLong)
	padded := fingerprint.Compute("  /videos/ep1.mp4 ", accounts.PlatformYouTube, " main ", accounts.KindLong)
	if plain != padded {
		t.Fatal("whitespace padding changed the fingerprint")
	}
}
