package board

import (
	"encoding/json"
	"fmt"

	"github.com/driftboard/driftboard/internal/typeid"
)

// NewSampleBoard builds the starter board used by the playground and by
// hosts that boot without a sync session. A few entities at mixed rotations
// so every gesture has something to grab.
func NewSampleBoard(boardID string) *Board {
	b := New(boardID, "Untitled board")

	photoID := typeid.NewEntityID()
	clipID := typeid.NewEntityID()
	noteID := typeid.NewEntityID()
	labelID := typeid.NewEntityID()
	groupID := typeid.NewEntityID()

	entities := []*Entity{
		{
			ID:     photoID,
			Kind:   KindImage,
			X:      120,
			Y:      120,
			Width:  320,
			Height: 240,
			Aspect: 320.0 / 240.0,
			Meta:   json.RawMessage(`{"url": "/assets/sample/shoreline.jpg", "naturalWidth": 1600, "naturalHeight": 1200}`),
		},
		{
			ID:       clipID,
			Kind:     KindVideo,
			X:        520,
			Y:        180,
			Width:    384,
			Height:   216,
			Rotation: 8,
			Aspect:   16.0 / 9.0,
			Meta:     json.RawMessage(`{"url": "/assets/sample/drift.mp4", "naturalWidth": 1920, "naturalHeight": 1080, "durationMs": 14500}`),
		},
		{
			ID:       noteID,
			Kind:     KindText,
			X:        180,
			Y:        440,
			Width:    260,
			Height:   120,
			Rotation: 352,
			Group:    groupID,
			Meta:     json.RawMessage(`{"runs": [{"text": "Drop media anywhere", "size": 24}]}`),
		},
		{
			ID:     labelID,
			Kind:   KindText,
			X:      470,
			Y:      470,
			Width:  200,
			Height: 90,
			Group:  groupID,
			Meta:   json.RawMessage(fmt.Sprintf(`{"runs": [{"text": "board %s", "size": 14}]}`, boardID)),
		},
		{
			ID:       groupID,
			Kind:     KindGroup,
			X:        180,
			Y:        440,
			Width:    490,
			Height:   150,
			Children: []string{noteID, labelID},
		},
	}

	for _, e := range entities {
		if err := b.Add(e); err != nil {
			// Ids are freshly minted; a collision here is a programming error.
			panic(fmt.Sprintf("sample board: %v", err))
		}
	}
	return b
}
