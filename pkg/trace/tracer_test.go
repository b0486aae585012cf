package trace

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStageBuildsSpans(t *testing.T) {
	tr := New()
	start := time.Now()

	tr.RecordStage("cid-1", "plan", start, nil)
	tr.RecordStage("cid-1", "execute", start, errors.New("graph not found"))
	tr.RecordStage("cid-2", "plan", start, nil)

	timeline := tr.Timeline("cid-1")
	require.Len(t, timeline, 2)

	assert.Equal(t, "plan", timeline[0].Stage)
	assert.Equal(t, StatusOK, timeline[0].Status)
	assert.Empty(t, timeline[0].Detail)

	assert.Equal(t, "execute", timeline[1].Stage)
	assert.Equal(t, StatusError, timeline[1].Status)
	assert.Equal(t, "graph not found", timeline[1].Detail)
	assert.False(t, timeline[1].EndedAt.Before(timeline[1].StartedAt))

	assert.Len(t, tr.Timeline("cid-2"), 1)
	assert.Empty(t, tr.Timeline("cid-unknown"))
}

func TestCountStage(t *testing.T) {
	tr := New()
	start := time.Now()

	tr.RecordStage("cid-1", "fuzzy", start, nil)
	tr.RecordStage("cid-1", "fuzzy", start, nil)
	tr.RecordStage("cid-1", "commit", start, nil)

	assert.Equal(t, 2, tr.CountStage("cid-1", "fuzzy"))
	assert.Equal(t, 1, tr.CountStage("cid-1", "commit"))
	assert.Equal(t, 0, tr.CountStage("cid-1", "audit"))
}

func TestEmptyCidIsDropped(t *testing.T) {
	tr := New()
	tr.Record("", Span{Stage: "plan"})
	assert.Empty(t, tr.Timeline(""))
}

func TestTimelineReturnsCopy(t *testing.T) {
	tr := New()
	tr.RecordStage("cid-1", "plan", time.Now(), nil)

	timeline := tr.Timeline("cid-1")
	timeline[0].Stage = "mutated"

	assert.Equal(t, "plan", tr.Timeline("cid-1")[0].Stage)
}
