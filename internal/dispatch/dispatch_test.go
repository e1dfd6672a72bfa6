package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arrowctl/internal/models"
	"arrowctl/internal/protocol"
	"arrowctl/internal/store"
)

func f64(v float64) *float64 { return &v }

func TestAddBowRespondsWithSingletonList(t *testing.T) {
	d := New(store.NewMemory(), nil)

	resp := d.Dispatch(context.Background(), protocol.AddBow{Bow: models.Bow{
		Id:                   models.InvalidId,
		Name:                 "Recurve",
		MaxDrawDistance:      0.85,
		RemainderArrowLength: 0.1,
	}})

	list, ok := resp.(protocol.BowList)
	require.True(t, ok, "got %#v", resp)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Id)
	assert.Equal(t, "Recurve", list[0].Name)
}

func TestListMeasuresOnEmptySeriesIsEmptyListNotError(t *testing.T) {
	d := New(store.NewMemory(), nil)

	resp := d.Dispatch(context.Background(), protocol.ListMeasures{SeriesId: 7})

	list, ok := resp.(protocol.MeasureList)
	require.True(t, ok, "got %#v", resp)
	assert.Empty(t, list)
}

func TestSeriesWithoutTargetRejectedBeforeStorage(t *testing.T) {
	mem := store.NewMemory()
	d := New(mem, nil)

	resp := d.Dispatch(context.Background(), protocol.NewMeasureSeries{Series: models.MeasureSeries{
		Id:    models.InvalidId,
		Name:  "aimless",
		BowId: 1,
	}})

	_, ok := resp.(protocol.Error)
	require.True(t, ok, "got %#v", resp)

	stored, err := mem.MeasureSeries(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, stored, "invalid series must never reach storage")
}

func TestSeriesWithOneTargetAccepted(t *testing.T) {
	d := New(store.NewMemory(), nil)

	for _, series := range []models.MeasureSeries{
		{Id: models.InvalidId, Name: "distance", DrawDistance: f64(0.7), BowId: 1},
		{Id: models.InvalidId, Name: "force", DrawForce: f64(120), BowId: 1},
	} {
		resp := d.Dispatch(context.Background(), protocol.NewMeasureSeries{Series: series})
		list, ok := resp.(protocol.MeasureSeriesList)
		require.True(t, ok, "got %#v", resp)
		require.Len(t, list, 1)
		assert.NotEqual(t, models.InvalidId, list[0].Id)
		assert.False(t, list[0].Time.IsZero(), "series time defaults to now")
	}
}

func TestCommandAcknowledgedWithAliveAndForwarded(t *testing.T) {
	commands := make(chan protocol.MachineCommand, 1)
	d := New(store.NewMemory(), commands)

	resp := d.Dispatch(context.Background(), protocol.Command{Command: protocol.CmdCalibrate})

	_, ok := resp.(protocol.Alive)
	require.True(t, ok, "got %#v", resp)
	select {
	case cmd := <-commands:
		assert.Equal(t, protocol.CmdCalibrate, cmd)
	default:
		t.Fatal("command was not forwarded to the device inbox")
	}
}

func TestCommandWithFullInboxStillAcknowledged(t *testing.T) {
	commands := make(chan protocol.MachineCommand) // nothing draining
	d := New(store.NewMemory(), commands)

	resp := d.Dispatch(context.Background(), protocol.Command{Command: protocol.CmdReset})
	_, ok := resp.(protocol.Alive)
	assert.True(t, ok, "got %#v", resp)
}

func TestEveryRequestYieldsExactlyOnePayload(t *testing.T) {
	d := New(store.NewMemory(), nil)
	requests := []protocol.Request{
		protocol.ListBows{},
		protocol.ListMeasureSeries{BowId: 1},
		protocol.ListArrows{BowId: 1},
		protocol.ListMeasures{SeriesId: 1},
		protocol.ListMeasurePoints{MeasureId: 1},
		protocol.AddBow{Bow: models.Bow{Id: models.InvalidId, Name: "b"}},
		protocol.AddArrow{Arrow: models.Arrow{Id: models.InvalidId, Length: 0.8, Weight: 0.02, BowId: 1}},
		protocol.NewMeasureSeries{Series: models.MeasureSeries{Id: models.InvalidId, DrawForce: f64(1), BowId: 1}},
		protocol.StartMeasure{Measure: models.Measure{Id: models.InvalidId, MeasureInterval: 0.01, MeasureSeriesId: 1, ArrowId: 1}},
		protocol.Command{Command: protocol.CmdShutdown},
	}
	for _, req := range requests {
		resp := d.Dispatch(context.Background(), req)
		require.NotNil(t, resp, "request %T", req)
	}
}
