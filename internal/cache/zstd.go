package cache

import (
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// compressToFile streams src through a zstd encoder into path,
// returning the compressed size.
func compressToFile(path string, src io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return 0, err
	}

	_, err = io.Copy(enc, src)
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// decompressFile streams path through a zstd decoder into dst.
func decompressFile(path string, dst io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	_, err = io.Copy(dst, dec)
	return err
}
