package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/dmitrijs2005/materialkeeper/internal/common"
	"github.com/dmitrijs2005/materialkeeper/internal/server/repositories/materials"
)

// Checksum returns the hex SHA-256 of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// findDuplicate returns the id of a live material of userID with the given
// checksum, or "" when there is none.
func findDuplicate(ctx context.Context, repo materials.Repository, userID, checksum string) (string, error) {
	m, err := repo.FindByChecksum(ctx, userID, checksum)
	if errors.Is(err, common.ErrorNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func duplicateError(materialID string) error {
	return common.NewError(common.CodeMaterialDuplicate, "identical material already exists").
		WithDetail("materialId", materialID)
}
