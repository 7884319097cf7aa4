package db

import (
	"strings"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// logger routes badger's logging through zap. Badger reports every
// compaction and table open at info level, so those go to debug; warnings
// and errors keep their level.
type logger struct {
	delegatee *zap.SugaredLogger
}

func NewLogger(l *zap.Logger) *logger {
	return &logger{
		delegatee: l.Named("badger").Sugar(),
	}
}

var _ badger.Logger = (*logger)(nil)

func (l *logger) Errorf(f string, args ...interface{}) {
	l.delegatee.Errorf(strings.TrimSuffix(f, "\n"), args...)
}

func (l *logger) Infof(f string, args ...interface{}) {
	l.delegatee.Debugf(strings.TrimSuffix(f, "\n"), args...)
}

func (l *logger) Warningf(f string, args ...interface{}) {
	l.delegatee.Warnf(strings.TrimSuffix(f, "\n"), args...)
}

func (l *logger) Debugf(f string, args ...interface{}) {
	l.delegatee.Debugf(strings.TrimSuffix(f, "\n"), args...)
}
