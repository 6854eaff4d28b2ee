package daemon

import (
	"syndicate/internal/accounts"
	"syndicate/internal/config"
	"syndicate/internal/publisher"
	"syndicate/internal/publisher/feed"
	"syndicate/internal/publisher/manual"
	"syndicate/internal/publisher/tiktok"
	"syndicate/internal/publisher/youtube"
)

// BuildAdapters wires one adapter per platform, swapping in the manual-only
// adapter for platforms the config lists as operator-managed.
func BuildAdapters(cfg *config.Config) *publisher.Registry {
	manualSet := make(map[accounts.Platform]bool, len(cfg.Upload.ManualPlatforms))
	for _, name := range cfg.Upload.ManualPlatforms {
		if platform, ok := accounts.ParsePlatform(name); ok {
			manualSet[platform] = true
		}
	}

	live := []publisher.Adapter{youtube.New(), tiktok.New(), feed.New()}
	adapters := make([]publisher.Adapter, 0, len(live))
	for _, adapter := range live {
		if manualSet[adapter.Platform()] {
			adapters = append(adapters, manual.New(adapter.Platform()))
			continue
		}
		adapters = append(adapters, adapter)
	}
	return publisher.NewRegistry(adapters...)
}
