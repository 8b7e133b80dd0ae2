// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package archive

import "compress/gzip"

// MutableGzipHeader wraps gzip.Header to allow modification of compression
// level. internal/pkgmgr's tar.zst packing uses klauspost/compress/zstd
// rather than gzip, so nothing in this tree constructs one yet; it stays
// alongside the gzip.Header-based TarGzFormat stabilization path in
// archive.go as that path's natural extension point for a caller that needs
// to recompress a TarGzFormat archive at a different level than it arrived.
type MutableGzipHeader struct {
	*gzip.Header
	Compression int
}
