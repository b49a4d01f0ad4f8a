// Package archive exports snapshots the corpus GC pass is about to evict
// from buntdb to cold, cheaper storage, compressed with lz4 before upload.
// The archived copy is never read back by the engine itself — it exists
// so an operator can recover a GC'd snapshot's bytes after the fact — so
// the Backend contract is intentionally write/read, never list/query.
//
// The call shapes here follow each cloud SDK's own canonical usage (see
// DESIGN.md for how each was sourced).
/*
 * Copyright (c) 2024, Open Product Recovery contributors.
 */
package archive

import (
	"bytes"
	"context"
	"io"

	"github.com/pierrec/lz4/v3"

	"github.com/CaravanStudios/opr-core-go/cmn"
)

// Backend is a cold-storage object sink. Put and Get operate on whole
// objects; the corpus GC path never needs partial reads.
type Backend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Compress wraps data in an lz4 frame. The corpus GC pass calls this
// before handing bytes to a Backend; nothing about Backend itself assumes
// compression, so a Backend implementation used outside that path is free
// to skip it.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, cmn.Wrap(cmn.CodeDatabase, err, "lz4 compress")
	}
	if err := w.Close(); err != nil {
		return nil, cmn.Wrap(cmn.CodeDatabase, err, "lz4 compress")
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, cmn.Wrap(cmn.CodeDatabase, err, "lz4 decompress")
	}
	return out, nil
}
