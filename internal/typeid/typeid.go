package typeid

import (
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

const (
	PrefixUser     = "user"
	PrefixProject  = "proj"
	PrefixSnapshot = "snap"
	PrefixOp       = "op"
	PrefixBoard    = "board"
	PrefixEntity   = "ent"
	PrefixDraft    = "draft"
	PrefixAsset    = "asset"
)

func New(prefix string) string {
	id := typeid.MustGenerate(prefix)
	return id.String()
}

func NewUserID() string     { return New(PrefixUser) }
func NewProjectID() string  { return New(PrefixProject) }
func NewSnapshotID() string { return New(PrefixSnapshot) }
func NewOpID() string       { return New(PrefixOp) }
func NewBoardID() string    { return New(PrefixBoard) }
func NewEntityID() string   { return New(PrefixEntity) }
func NewAssetID() string    { return New(PrefixAsset) }

// NewDraftID mints a provisional entity id. Drafts exist only on the client
// that created them; the authority replaces them with entity ids on confirm.
func NewDraftID() string { return New(PrefixDraft) }

// IsDraft reports whether id is a provisional entity id.
func IsDraft(id string) bool {
	return strings.HasPrefix(id, PrefixDraft+"_")
}

func Validate(id, expectedPrefix string) error {
	parsed, err := typeid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid typeid %q: %w", id, err)
	}
	if parsed.Prefix() != expectedPrefix {
		return fmt.Errorf("expected prefix %q but got %q in id %q", expectedPrefix, parsed.Prefix(), id)
	}
	return nil
}
