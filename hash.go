package splatscene

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// KeyframeHash is a consistent hash (i.e., content address) over a keyframe's
// time and all of its Gaussians, including their identities and observation
// counts. Two keyframes with the same KeyframeHash are equal.
type KeyframeHash contentAddress

func (h KeyframeHash) MarshalText() ([]byte, error) { return contentAddress(h).MarshalText() }
func (h *KeyframeHash) UnmarshalText(text []byte) error {
	return (*contentAddress)(h).UnmarshalText(text)
}
func (h KeyframeHash) String() string { return "keyframe(" + contentAddress(h).String() + ")" }
func (h KeyframeHash) IsZero() bool   { return contentAddress(h).IsZero() }

// SceneHash is a consistent hash (i.e., content address) over an entire scene:
// the hashes of its keyframes in time order. It versions the scene's
// revisions, so two scenes holding equal keyframes have equal SceneHashes,
// regardless of the mutations that produced them.
//
// It is defined as its own type to provide a compile-time guarantee against
// misuse of KeyframeHash.
type SceneHash contentAddress

func (h SceneHash) MarshalText() ([]byte, error)     { return contentAddress(h).MarshalText() }
func (h *SceneHash) UnmarshalText(text []byte) error { return (*contentAddress)(h).UnmarshalText(text) }
func (h SceneHash) String() string                   { return "scene(" + contentAddress(h).String() + ")" }
func (h SceneHash) IsZero() bool                     { return contentAddress(h).IsZero() }

// HashKeyframes digests the given keyframes, which must be ordered by time,
// into a SceneHash.
func HashKeyframes(keyframes []Keyframe) SceneHash {
	h := sha1.New()
	for _, k := range keyframes {
		h.Write(k.hash[:])
	}
	return SceneHash(h.Sum(nil))
}

// gaussianRecord is the fixed-size binary layout hashed for every Gaussian.
// Changing it changes every content address, so treat it as stable.
type gaussianRecord struct {
	Identity     uint64
	Position     [3]float32
	Rotation     [4]float32
	Scale        [3]float32
	Color        [3]float32
	Opacity      float32
	Observations uint32
}

func hashKeyframe(k Keyframe) KeyframeHash {
	h := sha1.New()
	writeBinary(h, k.time)
	for _, g := range k.gaussians {
		writeBinary(h, gaussianRecord{
			Identity:     uint64(g.Identity),
			Position:     g.Position,
			Rotation:     [4]float32{g.Rotation.W, g.Rotation.V[0], g.Rotation.V[1], g.Rotation.V[2]},
			Scale:        g.Scale,
			Color:        g.Color,
			Opacity:      g.Opacity,
			Observations: g.Observations,
		})
	}
	return KeyframeHash(h.Sum(nil))
}

func writeBinary(h hash.Hash, v any) {
	// writing to a hash.Hash never fails, and v is always fixed-size
	if err := binary.Write(h, binary.BigEndian, v); err != nil {
		panic(fmt.Sprintf("splatscene: un-hashable value (type %T): %v", v, err))
	}
}

// contentAddress is a consistent hash primitive serving as the base for strongly
// typed hashes, like KeyframeHash and SceneHash.
type contentAddress [sha1.Size]byte

func (h contentAddress) MarshalText() ([]byte, error) {
	text := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(text, h[:]) // always returns hex.EncodedLen(len(h)) (see hex.Encode)
	return text, nil
}

func (h *contentAddress) UnmarshalText(text []byte) error {
	n, err := hex.Decode(h[:], text)
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	if n != len(h) { // always n <= len(h[:]) (see hex.Decode)
		return fmt.Errorf("not enough bytes: %w", io.ErrUnexpectedEOF)
	}
	return nil
}

func (h contentAddress) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero value of the type.
func (h contentAddress) IsZero() bool {
	return h == contentAddress{}
}
