package buildcache

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// seed for the second lane; changing it invalidates every persisted cache
const digestSeed = 0x63706c6162

// Digest is a 128-bit content digest built from two independent xxhash64 lanes
type Digest [16]byte

// String returns the 32 character hex form stored in the cache file
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// HashReader digests everything read from r
func HashReader(r io.Reader) (Digest, error) {
	lo := xxhash.New()
	hi := xxhash.NewWithSeed(digestSeed)

	if _, err := io.Copy(io.MultiWriter(lo, hi), r); err != nil {
		return Digest{}, err
	}

	var d Digest
	binary.BigEndian.PutUint64(d[:8], lo.Sum64())
	binary.BigEndian.PutUint64(d[8:], hi.Sum64())

	return d, nil
}

// HashFile digests a file's content
func HashFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()

	d, err := HashReader(f)
	if err != nil {
		return Digest{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return d, nil
}
