// Package memengine is an in-process implementation of the engine
// contract. Models are CBOR snapshots carrying a spatial tree and per-element
// attributes and bounds; tools operate on that data without rendering.
package memengine

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/zjrosen/bimview/internal/engine"
	"github.com/zjrosen/bimview/internal/spatialtree"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// ErrBadSnapshot is returned for payloads that do not decode to a usable
// snapshot.
var ErrBadSnapshot = errors.New("memengine: invalid snapshot")

// Snapshot is the serialized form of one model.
type Snapshot struct {
	Version  int               `cbor:"v"`
	Name     string            `cbor:"name,omitempty"`
	Tree     *spatialtree.Node `cbor:"tree"`
	Elements []Element         `cbor:"elements"`
}

// Element is one element of a snapshot. Elements without Bounds have no
// geometry.
type Element struct {
	LocalID    int               `cbor:"id"`
	Type       string            `cbor:"type"`
	Name       string            `cbor:"name,omitempty"`
	Attributes map[string]string `cbor:"attrs,omitempty"`
	Bounds     *engine.Box       `cbor:"bounds,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("memengine: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("memengine: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeSnapshot serializes s with deterministic CBOR.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	if s.Version == 0 {
		s.Version = SnapshotVersion
	}
	return encMode.Marshal(s)
}

// DecodeSnapshot parses a snapshot and checks that it has a tree and no
// duplicate element ids.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := decMode.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSnapshot, err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, s.Version)
	}
	if s.Tree == nil {
		return nil, fmt.Errorf("%w: missing spatial tree", ErrBadSnapshot)
	}
	seen := make(map[int]struct{}, len(s.Elements))
	for _, e := range s.Elements {
		if _, dup := seen[e.LocalID]; dup {
			return nil, fmt.Errorf("%w: duplicate element id %d", ErrBadSnapshot, e.LocalID)
		}
		seen[e.LocalID] = struct{}{}
	}
	return &s, nil
}
