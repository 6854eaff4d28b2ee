// Package manual implements the publish capability contract for platforms
// operated entirely by hand: every publish attempt yields a manual-required
// outcome without any network I/O, parking the target until an operator
// uploads the artifact themselves and requeues or cancels it.
package manual

import (
	"context"

	"syndicate/internal/accounts"
	"syndicate/internal/publisher"
)

// Adapter is the manual-only mode for a platform family.
type Adapter struct {
	platform accounts.Platform
}

// New constructs a manual adapter standing in for the given platform.
func New(platform accounts.Platform) *Adapter {
	return &Adapter{platform: platform}
}

// Platform returns the platform family this adapter stands in for.
func (a *Adapter) Platform() accounts.Platform {
	return a.platform
}

// ResolveAccount always reports manual intervention; no environment or token
// lookup happens.
func (a *Adapter) ResolveAccount(_ context.Context, account accounts.Account) (publisher.Credentials, error) {
	return publisher.Credentials{}, publisher.Wrap(publisher.ErrManualRequired, string(a.platform), "resolve account",
		"platform is operated manually", nil)
}

// VerifyIdentity never runs for manual platforms; resolution fails first.
func (a *Adapter) VerifyIdentity(context.Context, publisher.Credentials, string) error {
	return publisher.Wrap(publisher.ErrManualRequired, string(a.platform), "verify identity",
		"platform is operated manually", nil)
}

// Publish never runs for manual platforms; resolution fails first.
func (a *Adapter) Publish(context.Context, publisher.Credentials, publisher.PublishRequest) (string, error) {
	return "", publisher.Wrap(publisher.ErrManualRequired, string(a.platform), "publish",
		"platform is operated manually", nil)
}
