package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/materialkeeper/internal/common"
	"github.com/dmitrijs2005/materialkeeper/internal/server/indexer"
	"github.com/dmitrijs2005/materialkeeper/internal/server/storage"
)

// rollback records the side effects committed so far by one run. Steps fill
// it in as they succeed; compensate reads it on failure.
type rollback struct {
	userID string
	// sessionID is set once the session is loaded.
	sessionID string
	// tempKey is cleared once the temp object has been deleted.
	tempKey  string
	finalKey string

	materialID string
	// ownsMaterial is true when materialID was allocated by this run.
	ownsMaterial bool
	// indexed is true once ingestion was attempted.
	indexed bool
}

// materialOnly keeps just the material of rb. It is used when a step fails
// before any upload side effect needs undoing.
func (rb *rollback) materialOnly() *rollback {
	return &rollback{
		userID:       rb.userID,
		materialID:   rb.materialID,
		ownsMaterial: rb.ownsMaterial,
		indexed:      rb.indexed,
	}
}

func (rb *rollback) empty() bool {
	return rb.sessionID == "" && rb.tempKey == "" && rb.finalKey == "" && rb.materialID == ""
}

// compensate undoes what rb records. Every action runs even if an earlier
// one failed; failures are logged.
func (s *Service) compensate(ctx context.Context, rb *rollback, cause error) {
	if rb.empty() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	reason := failureReason(cause)

	var errs []error
	if rb.sessionID != "" {
		errs = append(errs, undo("mark session failed", func() error {
			applied, err := s.repos.Uploads(s.db).MarkFailed(ctx, rb.sessionID, reason)
			if err == nil && !applied {
				s.log.Debug(ctx, "session already terminal", "upload_id", rb.sessionID)
			}
			return err
		}))
	}
	if rb.tempKey != "" {
		errs = append(errs, undo("delete temp object", func() error {
			return s.deleteObject(ctx, rb.tempKey)
		}))
	}
	if rb.finalKey != "" {
		errs = append(errs, undo("delete final object", func() error {
			return s.deleteObject(ctx, rb.finalKey)
		}))
	}
	if rb.materialID != "" {
		if rb.ownsMaterial || rb.indexed {
			errs = append(errs, undo("delete index entries", func() error {
				return s.index.DeleteByFilter(ctx, indexer.MaterialKey(rb.userID, rb.materialID))
			}))
		}
		if rb.ownsMaterial {
			errs = append(errs, undo("delete material", func() error {
				return s.repos.Materials(s.db).HardDelete(ctx, rb.materialID)
			}))
		} else {
			errs = append(errs, undo("mark material failed", func() error {
				_, err := s.repos.Materials(s.db).MarkFailed(ctx, rb.materialID, reason)
				return err
			}))
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.log.Error(ctx, "compensation incomplete",
			"upload_id", rb.sessionID, "material_id", rb.materialID, "error", err)
		return
	}
	s.log.Info(ctx, "compensation done", "upload_id", rb.sessionID, "material_id", rb.materialID)
}

func (s *Service) deleteObject(ctx context.Context, key string) error {
	err := s.store.DeleteObject(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil
	}
	return err
}

// undo runs one compensating action, turning a panic into an error.
func undo(name string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s: panic: %v", name, p)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// failureReason is the text stored on the session and the material.
func failureReason(err error) string {
	if err == nil {
		return ""
	}
	return common.AsCoded(err).Error()
}
