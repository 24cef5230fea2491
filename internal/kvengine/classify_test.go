package kvengine

import (
	"testing"

	"github.com/meridiandb/meridian-go/internal/errmap"
	"github.com/meridiandb/meridian-go/internal/retry"
	"github.com/meridiandb/meridian-go/internal/wire"
	"github.com/stretchr/testify/assert"
)

func TestClassify_SuccessIsRuleOne(t *testing.T) {
	assert.Equal(t, retry.ReasonUnknown, Classify(wire.StatusSuccess, nil))
}

func TestClassify_SubdocPathErrorSurfacesImmediately(t *testing.T) {
	assert.Equal(t, retry.ReasonDoNotRetry, Classify(wire.StatusSubdocPathNotFound, nil))
}

func TestClassify_KnownStatusesReclassify(t *testing.T) {
	assert.Equal(t, retry.ReasonKVLocked, Classify(wire.StatusLocked, nil))
	assert.Equal(t, retry.ReasonKVTemporaryFailure, Classify(wire.StatusTemporaryFailure, nil))
	assert.Equal(t, retry.ReasonKVSyncWriteInProgress, Classify(wire.StatusSyncWriteInProgress, nil))
	assert.Equal(t, retry.ReasonKVNotMyVBucket, Classify(wire.StatusNotMyVBucket, nil))
	assert.Equal(t, retry.ReasonKVCollectionOutdated, Classify(wire.StatusUnknownCollection, nil))
}

func TestClassify_ErrorMapRetryAttributeReclassifies(t *testing.T) {
	em, err := errmap.Parse([]byte(`{"version":1,"revision":1,"errors":{"0x85":{"name":"EBUSY","desc":"busy","attrs":["retry-now"]}}}`))
	assert.NoError(t, err)
	assert.Equal(t, retry.ReasonKVErrorMapRetryIndicated, Classify(wire.StatusBusy, em))
}

func TestClassify_UnknownStatusWithoutErrorMapSurfaces(t *testing.T) {
	assert.Equal(t, retry.ReasonDoNotRetry, Classify(wire.StatusInternal, nil))
}

func TestClassify_NilErrorMapIsSafe(t *testing.T) {
	assert.Equal(t, retry.ReasonDoNotRetry, Classify(wire.StatusBusy, nil))
}
