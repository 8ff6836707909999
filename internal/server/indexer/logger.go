package indexer

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/dmitrijs2005/materialkeeper/internal/logging"
)

var _ badger.Logger = (*badgerLogger)(nil)

// badgerLogger routes badger's printf-style logs into the service logger.
type badgerLogger struct {
	log logging.Logger
}

func (l *badgerLogger) Errorf(msg string, args ...any) {
	l.log.Error(context.Background(), fmt.Sprintf(msg, args...))
}

func (l *badgerLogger) Warningf(msg string, args ...any) {
	l.log.Warn(context.Background(), fmt.Sprintf(msg, args...))
}

func (l *badgerLogger) Infof(msg string, args ...any) {
	l.log.Debug(context.Background(), fmt.Sprintf(msg, args...))
}

func (l *badgerLogger) Debugf(msg string, args ...any) {
	l.log.Debug(context.Background(), fmt.Sprintf(msg, args...))
}
