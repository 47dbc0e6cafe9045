package workqueue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/docpipeline/internal/errdefs"
	"github.com/adverant/nexus/docpipeline/internal/model"
	"github.com/adverant/nexus/docpipeline/internal/storetest"
	"github.com/adverant/nexus/docpipeline/internal/workqueue"
)

func TestQueueCountAndFetchBatchFilterByWorkType(t *testing.T) {
	st := storetest.New()
	downloadedID, _ := st.PutDocument(model.Document{Title: "ready", Status: model.DocumentDownloaded}, model.Version{})
	st.PutDocument(model.Document{Title: "already extracted", Status: model.DocumentTextExtracted}, model.Version{})

	q := workqueue.New(st, "text_extraction")
	count, err := q.Count(context.Background(), model.WorkFilter{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	batch, err := q.FetchBatch(context.Background(), model.WorkFilter{}, 10, "")
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, downloadedID, batch[0].ID)
}

func TestQueueClaimIsExclusiveUntilReleased(t *testing.T) {
	st := storetest.New()
	docID, _ := st.PutDocument(model.Document{Title: "doc", Status: model.DocumentDownloaded}, model.Version{})
	q := workqueue.New(st, "text_extraction")

	handle, err := q.Claim(context.Background(), model.Document{ID: docID}, model.WorkFilter{})
	require.NoError(t, err)
	require.NotNil(t, handle)

	_, err = q.Claim(context.Background(), model.Document{ID: docID}, model.WorkFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrAlreadyClaimed))

	require.NoError(t, q.Release(context.Background(), handle))

	handle2, err := q.Claim(context.Background(), model.Document{ID: docID}, model.WorkFilter{})
	require.NoError(t, err)
	require.NoError(t, q.Complete(context.Background(), handle2))
}
