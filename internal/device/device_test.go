package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arrowctl/internal/models"
	"arrowctl/internal/protocol"
)

func TestDefaultCalibrationIsIdentity(t *testing.T) {
	cal := DefaultCalibration()
	require.NoError(t, cal.Prepare())

	out, err := cal.Evaluate(123.5)
	require.NoError(t, err)
	assert.InDelta(t, 123.5, out, 1e-9)
}

func TestCalibrationWithIntermediates(t *testing.T) {
	cal := &Calibration{
		Inputs:        map[string]float64{"arm": 0.25, "gain": 2.0},
		Intermediates: map[string]string{"lever": "1.0 / arm"},
		Expression:    "sample * gain * lever",
	}
	require.NoError(t, cal.Prepare())

	out, err := cal.Evaluate(10)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, out, 1e-9)
}

func TestCalibrationCompileErrorSurfaces(t *testing.T) {
	cal := &Calibration{Expression: "sample +"}
	assert.Error(t, cal.Prepare())

	_, err := cal.Evaluate(1)
	assert.Error(t, err, "unprepared calibration must not evaluate")
}

func TestControllerReportsStatusAndTerminates(t *testing.T) {
	status := make(chan protocol.Payload, 8)
	ctl := New(status, nil)

	done := make(chan struct{})
	go func() {
		ctl.Run()
		close(done)
	}()

	// startup report
	select {
	case p := <-status:
		assert.Equal(t, protocol.Status(models.StatusPaused), p)
	case <-time.After(time.Second):
		t.Fatal("no startup status report")
	}

	ctl.Commands() <- protocol.CmdCalibrate
	select {
	case p := <-status:
		assert.Equal(t, protocol.Status(models.StatusPaused), p)
	case <-time.After(time.Second):
		t.Fatal("no status report after calibrate")
	}

	ctl.Control() <- Terminate
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("controller did not terminate")
	}
}

func TestControllerReportsErrorOnBadCalibration(t *testing.T) {
	status := make(chan protocol.Payload, 8)
	ctl := New(status, &Calibration{Expression: "nonsense("})

	done := make(chan struct{})
	go func() {
		ctl.Run()
		close(done)
	}()

	select {
	case p := <-status:
		assert.Equal(t, protocol.Status(models.StatusError), p)
	case <-time.After(time.Second):
		t.Fatal("no startup status report")
	}

	ctl.Control() <- Terminate
	<-done
}
