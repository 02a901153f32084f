package main

import (
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Deflate and Store are handled by the zip package itself. Other methods a
// dependency archive may carry are registered here by method id.
var archiveDecompressors = map[uint16]func() zip.Decompressor{
	zstd.ZipMethodWinZip: func() zip.Decompressor { return zstd.ZipDecompressor() },
	zstd.ZipMethodPKWare: func() zip.Decompressor { return zstd.ZipDecompressor() },
}

func openArchive(path string) (*zip.ReadCloser, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	for method, dcomp := range archiveDecompressors {
		rc.RegisterDecompressor(method, dcomp())
	}
	return rc, nil
}
