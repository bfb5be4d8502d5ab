package gallery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camview/internal/types"
)

var base = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func frameAt(i int) types.Frame {
	return types.Frame{
		Image:      []byte{byte(i)},
		Labels:     []types.Label{{Description: "Person", Score: 0.9}},
		CapturedAt: base.Add(time.Duration(i) * time.Second),
	}
}

func TestGallery_KeepsLastTenNewestFirst(t *testing.T) {
	g := New(10)
	for i := 0; i < 12; i++ {
		require.True(t, g.InsertIfNoteworthy(frameAt(i), true))
	}

	items := g.List()
	require.Len(t, items, 10)
	for idx, snap := range items {
		want := 11 - idx
		assert.Equal(t, []byte{byte(want)}, snap.Image, "position %d", idx)
	}
}

func TestGallery_NonNoteworthyNeverChangesLength(t *testing.T) {
	g := New(10)
	g.InsertIfNoteworthy(frameAt(0), true)

	for i := 1; i < 20; i++ {
		assert.False(t, g.InsertIfNoteworthy(frameAt(i), false))
	}
	assert.Equal(t, 1, g.Len())
}

func TestGallery_IDsStrictlyIncrease(t *testing.T) {
	g := New(5)
	f := frameAt(0)
	g.InsertIfNoteworthy(f, true)
	g.InsertIfNoteworthy(f, true)
	g.InsertIfNoteworthy(f, true)

	items := g.List()
	assert.Equal(t, base.UnixMilli()+2, items[0].ID)
	assert.Greater(t, items[0].ID, items[1].ID)
	assert.Greater(t, items[1].ID, items[2].ID)
	assert.Equal(t, "2026-02-03 04:05:06", items[2].Time)
}

func TestGallery_ListIsACopy(t *testing.T) {
	g := New(3)
	g.InsertIfNoteworthy(frameAt(1), true)

	items := g.List()
	items[0].LabelSummary = "changed"
	assert.Equal(t, "Person", g.List()[0].LabelSummary)
}

func TestGallery_DefaultCapacity(t *testing.T) {
	assert.Equal(t, 10, New(0).Capacity())
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name  string
		frame types.Frame
		want  string
	}{
		{"empty", types.Frame{}, ""},
		{"edge only", types.Frame{EdgeDetected: true}, "edge detected"},
		{"one", types.Frame{Labels: []types.Label{{Description: "Cat"}}}, "Cat"},
		{"capped at three", types.Frame{Labels: []types.Label{
			{Description: "Person"}, {Description: "Face"}, {Description: "Smile"}, {Description: "Chair"},
		}}, "Person, Face, Smile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summary(tt.frame))
		})
	}
}
