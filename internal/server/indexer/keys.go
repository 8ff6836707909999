package indexer

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	chunkPrefix = "chunk"
	docPrefix   = "doc"
)

// Key identifies one indexed source of one owner, e.g. (user, "material", id).
type Key struct {
	UserID   string
	Kind     string
	SourceID string
}

func (k Key) path() string {
	return url.PathEscape(k.UserID) + "/" + url.PathEscape(k.Kind) + "/" + url.PathEscape(k.SourceID)
}

func (k Key) docKey() []byte {
	return []byte(docPrefix + "/" + k.path())
}

func (k Key) chunkPrefix() []byte {
	return []byte(chunkPrefix + "/" + k.path() + "/")
}

func (k Key) chunkKey(position int) []byte {
	// zero padding keeps chunks in position order under lexicographic iteration
	return []byte(fmt.Sprintf("%s/%s/%06d", chunkPrefix, k.path(), position))
}

func userChunkPrefix(userID string) []byte {
	return []byte(chunkPrefix + "/" + url.PathEscape(userID) + "/")
}

func parseChunkKey(raw []byte) (Key, bool) {
	parts := strings.Split(string(raw), "/")
	if len(parts) != 5 || parts[0] != chunkPrefix {
		return Key{}, false
	}
	var k Key
	for i, dst := range []*string{&k.UserID, &k.Kind, &k.SourceID} {
		v, err := url.PathUnescape(parts[i+1])
		if err != nil {
			return Key{}, false
		}
		*dst = v
	}
	return k, true
}

// KindMaterial is the Kind of keys created for materials.
const KindMaterial = "material"

// MaterialKey is the index key of one material of userID.
func MaterialKey(userID, materialID string) Key {
	return Key{UserID: userID, Kind: KindMaterial, SourceID: materialID}
}
