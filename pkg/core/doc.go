// Package core provides the fundamental types and interfaces for the chatsync module.
//
// This package contains:
//   - Message, fragment, and destination data models
//   - The collaborator interfaces the pipelines are built against
//     (local stores, remote API, notification presenter)
//   - Error types shared across the pipelines
//
// Most users should import the root package github.com/ykurenkov/chatsync
// instead of this package directly.
package core
