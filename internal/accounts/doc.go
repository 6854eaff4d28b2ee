// Package accounts loads the declarative publishing account configuration,
// validates each entry per platform, and resolves default accounts for
// publish kinds. A loaded registry exposes immutable snapshots; reloads swap
// the snapshot atomically so in-flight dispatches keep a consistent view.
package accounts
