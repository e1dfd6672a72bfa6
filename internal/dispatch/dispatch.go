// Package dispatch routes decoded requests to storage operations and
// shapes the outcome as a response payload. It is a pure routing table:
// exactly one payload per request, failures become Error payloads, nothing
// here ever panics or drops a request.
package dispatch

import (
	"context"
	"log"

	"arrowctl/internal/models"
	"arrowctl/internal/protocol"
	"arrowctl/internal/store"
)

type Dispatcher struct {
	store    store.Store
	commands chan<- protocol.MachineCommand
}

// New builds a dispatcher over st. Machine commands are forwarded into
// commands (the device controller's inbox) without waiting; a nil channel
// means no device is attached and commands are acknowledged only.
func New(st store.Store, commands chan<- protocol.MachineCommand) *Dispatcher {
	return &Dispatcher{store: st, commands: commands}
}

// Dispatch executes one request. The returned payload is the response;
// updates triggered by any mutation travel separately through the
// change-notification bridge, with no ordering promise relative to this
// response.
func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.Request) protocol.Payload {
	switch r := req.(type) {
	case protocol.ListBows:
		bows, err := d.store.Bows(ctx)
		if err != nil {
			return protocol.Errorf("could not list bows: %v", err)
		}
		return protocol.BowList(bows)

	case protocol.ListMeasureSeries:
		series, err := d.store.MeasureSeries(ctx, r.BowId)
		if err != nil {
			return protocol.Errorf("could not list measure series for bow %d: %v", r.BowId, err)
		}
		return protocol.MeasureSeriesList(series)

	case protocol.ListArrows:
		arrows, err := d.store.Arrows(ctx, r.BowId)
		if err != nil {
			return protocol.Errorf("could not list arrows for bow %d: %v", r.BowId, err)
		}
		return protocol.ArrowList(arrows)

	case protocol.ListMeasures:
		measures, err := d.store.Measures(ctx, r.SeriesId)
		if err != nil {
			return protocol.Errorf("could not list measures for series %d: %v", r.SeriesId, err)
		}
		return protocol.MeasureList(measures)

	case protocol.ListMeasurePoints:
		points, err := d.store.MeasurePoints(ctx, r.MeasureId)
		if err != nil {
			return protocol.Errorf("could not list measure points for measure %d: %v", r.MeasureId, err)
		}
		return protocol.MeasurePointList(points)

	case protocol.AddBow:
		bow, err := d.store.AddBow(ctx, r.Bow)
		if err != nil {
			return protocol.Errorf("could not add bow: %v", err)
		}
		return protocol.BowList{bow}

	case protocol.AddArrow:
		arrow, err := d.store.AddArrow(ctx, r.Arrow)
		if err != nil {
			return protocol.Errorf("could not add arrow: %v", err)
		}
		return protocol.ArrowList{arrow}

	case protocol.NewMeasureSeries:
		// the one invariant enforced above storage: a series must aim at
		// a draw distance or a draw force
		if r.Series.DrawDistance == nil && r.Series.DrawForce == nil {
			return protocol.Error("measure series needs a draw distance or a draw force target")
		}
		if r.Series.Time.IsZero() {
			r.Series.Time = models.Now()
		}
		series, err := d.store.AddMeasureSeries(ctx, r.Series)
		if err != nil {
			return protocol.Errorf("could not add measure series: %v", err)
		}
		return protocol.MeasureSeriesList{series}

	case protocol.StartMeasure:
		measure, err := d.store.AddMeasure(ctx, r.Measure)
		if err != nil {
			return protocol.Errorf("could not start measure: %v", err)
		}
		return protocol.MeasureList{measure}

	case protocol.Command:
		if d.commands != nil {
			select {
			case d.commands <- r.Command:
			default:
				log.Println("[WARN] device command inbox full, dropping", r.Command)
			}
		}
		return protocol.Alive{}
	}
	return protocol.Errorf("unroutable request %T", req)
}
