package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adverant/nexus/docpipeline/internal/logging"
)

func TestNopLoggerDiscardsWithoutPanicking(t *testing.T) {
	log := logging.NewNop()
	assert.NotPanics(t, func() {
		log.Info("starting", "run_id", "r-1")
		log.Warn("slow stage", "stage", "ocr")
		log.Error("stage failed", "err", "boom")
		log.Debug("claim acquired", "doc_id", "d-1")
		log.Sync()
	})
}

func TestWithReturnsIndependentChildLogger(t *testing.T) {
	base := logging.NewNop()
	child := base.With("run_id", "r-2")

	assert.NotSame(t, base, child)
	assert.NotPanics(t, func() {
		child.Info("chunk processed", "count", 4)
	})
}
