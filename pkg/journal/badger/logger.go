package badger

import (
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// badgerLoggerAdapter routes badger's internal logging through zap
type badgerLoggerAdapter struct {
	logger *zap.SugaredLogger
}

var _ badgerdb.Logger = (*badgerLoggerAdapter)(nil)

func newBadgerLoggerAdapter(logger *zap.Logger) *badgerLoggerAdapter {
	return &badgerLoggerAdapter{logger: logger.With(zap.String("component", "badger")).Sugar()}
}

func (b *badgerLoggerAdapter) Errorf(format string, args ...interface{}) {
	b.logger.Error(fmt.Sprintf(format, args...))
}

func (b *badgerLoggerAdapter) Warningf(format string, args ...interface{}) {
	b.logger.Warn(fmt.Sprintf(format, args...))
}

// Infof is demoted to debug; badger is chatty on open and compaction.
func (b *badgerLoggerAdapter) Infof(format string, args ...interface{}) {
	b.logger.Debug(fmt.Sprintf(format, args...))
}

func (b *badgerLoggerAdapter) Debugf(format string, args ...interface{}) {
	b.logger.Debug(fmt.Sprintf(format, args...))
}
