// Package storage defines the provider abstraction for object storage
// backends together with the shared types every backend speaks.
//
// A Provider moves bytes and metadata for string-keyed objects. Concrete
// backends (S3-compatible services, the local filesystem, an in-memory
// store for tests) register themselves with the factory in this package
// and are constructed from configuration alone:
//
//	prov, err := storage.New(ctx, storage.Config{
//		Provider: storage.ProviderS3,
//		S3:       &s3cfg,
//	})
//
// All operations take a context and return typed errors; use IsNotFound,
// IsTransient and IsTerminal to branch on failure classes without
// inspecting backend-specific error values.
package storage
