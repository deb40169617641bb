// Package artifact ships the built-in artifact classes: key/value CSV files
// with their collections and project, array files backed by an external
// in-memory array, and read-only SQLite table files. Each class is a plain
// function table; Classes returns the full set for registration.
package artifact

import (
	"encoding/json"

	"github.com/google/uuid"

	"comb/internal/registry"
)

// Fixed class identifiers. Changing one orphans every workspace that
// recorded it.
var (
	KeyIntFileID  = uuid.MustParse("a1c9bef2-846c-4003-a357-3639628d6d13")
	KeyStrFileID  = uuid.MustParse("45cd53b2-8d48-4f07-b560-3d0142a8d626")
	KeyBoolFileID = uuid.MustParse("1d413ff9-1ce1-443a-ba5b-c5e8f878253c")

	KeyIntCollectionID  = uuid.MustParse("2aab4e79-abde-4cd8-9559-aa1d3dcea56e")
	KeyStrCollectionID  = uuid.MustParse("35f33923-cd77-4ba1-95b9-654611846dcf")
	KeyBoolCollectionID = uuid.MustParse("9f6d1c3e-6f3a-4c39-b0a7-52cf0d6a3b18")

	KeyValProjectID = uuid.MustParse("a7ef3443-6339-4a95-a0c0-73d477ead1d2")

	ArrayFileID           = uuid.MustParse("c1a6a1b7-2f55-4de4-9d0a-6df6c7a9f3d4")
	ArrayFileCollectionID = uuid.MustParse("f68c8749-8c91-4c8e-b07c-67f09208ff2a")

	TableFileID = uuid.MustParse("e3b6f3d0-8a2e-44d5-9c41-0f1de49f6b7a")
)

// Classes returns one instance of every built-in class.
func Classes() []*registry.Class {
	return []*registry.Class{
		KeyIntFile(),
		KeyStrFile(),
		KeyBoolFile(),
		KeyIntCollection(),
		KeyStrCollection(),
		KeyBoolCollection(),
		KeyValProject(),
		ArrayFile(),
		ArrayFileCollection(),
		TableFile(),
	}
}

// parseJSON unmarshals a raw metadata payload into T.
func parseJSON[T any](raw json.RawMessage) (any, error) {
	var m T
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func marshalJSON(metadata any) (json.RawMessage, error) {
	return json.Marshal(metadata)
}
