package system

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// NewTestLogger returns a sugared debug logger that writes through t.Log, so
// lifecycle traces only show up for failing or verbose tests.
func NewTestLogger(t zaptest.TestingT) *zap.SugaredLogger {
	return zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel)).Sugar()
}
