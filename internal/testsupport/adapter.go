package testsupport

import (
	"context"
	"sync/atomic"

	"syndicate/internal/accounts"
	"syndicate/internal/publisher"
)

// StubAdapter is a scriptable publisher.Adapter for tests. Unset function
// fields succeed: ResolveAccount falls back to the shared env resolution,
// VerifyIdentity accepts, and Publish returns "stub-external-id".
type StubAdapter struct {
	PlatformName accounts.Platform

	ResolveFunc func(ctx context.Context, account accounts.Account) (publisher.Credentials, error)
	VerifyFunc  func(ctx context.Context, creds publisher.Credentials, expectedIdentity string) error
	PublishFunc func(ctx context.Context, creds publisher.Credentials, req publisher.PublishRequest) (string, error)

	resolveCalls atomic.Int64
	verifyCalls  atomic.Int64
	publishCalls atomic.Int64
}

var _ publisher.Adapter = (*StubAdapter)(nil)

func (a *StubAdapter) Platform() accounts.Platform {
	return a.PlatformName
}

func (a *StubAdapter) ResolveAccount(ctx context.Context, account accounts.Account) (publisher.Credentials, error) {
	a.resolveCalls.Add(1)
	if a.ResolveFunc != nil {
		return a.ResolveFunc(ctx, account)
	}
	return publisher.ResolveFromEnv(account)
}

func (a *StubAdapter) VerifyIdentity(ctx context.Context, creds publisher.Credentials, expectedIdentity string) error {
	a.verifyCalls.Add(1)
	if a.VerifyFunc != nil {
		return a.VerifyFunc(ctx, creds, expectedIdentity)
	}
	return nil
}

func (a *StubAdapter) Publish(ctx context.Context, creds publisher.Credentials, req publisher.PublishRequest) (string, error) {
	a.publishCalls.Add(1)
	if a.PublishFunc != nil {
		return a.PublishFunc(ctx, creds, req)
	}
	return "stub-external-id", nil
}

// ResolveCalls reports how many times ResolveAccount ran.
func (a *StubAdapter) ResolveCalls() int64 { return a.resolveCalls.Load() }

// VerifyCalls reports how many times VerifyIdentity ran.
func (a *StubAdapter) VerifyCalls() int64 { return a.verifyCalls.Load() }

// PublishCalls reports how many times Publish ran.
func (a *StubAdapter) PublishCalls() int64 { return a.publishCalls.Load() }
