// Package snapshot captures and restores the shared argument bag at
// attempt boundaries, so retries are idempotent with respect to the state
// the caller observes.
package snapshot

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"

	"github.com/kcze/conveyor/internal/pipeline/component"
)

// Snapshot is a deep copy of an Args value, held in encoded form. The
// msgpack round trip severs all aliasing with the live bag; the blake3
// digest makes "restored bit-for-bit" a cheap comparison.
type Snapshot struct {
	buf    []byte
	digest [32]byte
}

// Capture encodes the current contents of args.
func Capture(args *component.Args) (*Snapshot, error) {
	b, err := encode(args)
	if err != nil {
		return nil, fmt.Errorf("encode args snapshot: %w", err)
	}
	return &Snapshot{buf: b, digest: blake3.Sum256(b)}, nil
}

// encode serializes the bag with sorted map keys so that equal states
// always produce equal bytes, regardless of map iteration order.
func encode(args *component.Args) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(args.Values()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Restore replaces the contents of args with the captured state. The
// replacement happens in place: components holding a reference to the bag
// observe the restored values on the next attempt.
func (s *Snapshot) Restore(args *component.Args) error {
	var values map[string]any
	if err := msgpack.Unmarshal(s.buf, &values); err != nil {
		return fmt.Errorf("decode args snapshot: %w", err)
	}
	if values == nil {
		values = map[string]any{}
	}
	args.Replace(values)
	return nil
}

// Matches reports whether args currently encodes to the captured bytes.
func (s *Snapshot) Matches(args *component.Args) (bool, error) {
	b, err := encode(args)
	if err != nil {
		return false, fmt.Errorf("encode args for comparison: %w", err)
	}
	return bytes.Equal(s.buf, b), nil
}

// Digest returns the blake3 digest of the encoded state, hex-encoded.
// Useful for correlating rollback events in diagnostics.
func (s *Snapshot) Digest() string {
	return hex.EncodeToString(s.digest[:])
}
