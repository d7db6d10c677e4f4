// Package storage archives uploaded spreadsheets in object storage.
//
// It wraps the MinIO Go client behind the Client interface so that S3 and self-hosted
// MinIO are interchangeable and tests can use core/storage/mocks.
//
// Archive sits on top of Client. Every accepted upload is stored as
// uploads/<uuid>/<filename>; the key is recorded on the batch so the original file can
// be retrieved later and the integrity check can find archives no batch references.
//
// # Usage
//
//	archive, err := storage.Dial(ctx, cfg.Storage)
//	key, err := archive.Put(ctx, "jan.xlsx", file, size)
package storage
