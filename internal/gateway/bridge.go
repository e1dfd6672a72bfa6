package gateway

import (
	"context"
	"log"

	"arrowctl/internal/protocol"
	"arrowctl/internal/store"
)

// runBridge consumes the storage backend's change-notification stream.
// Each event is a hint: the affected rows are re-queried by id and the
// result queued as one update. An empty or failed re-fetch queues
// nothing.
func (this *Gateway) runBridge(ctx context.Context) {
	sink := make(chan store.ChangeEvent, updateQueueDepth)
	go func() {
		if err := this.store.Listen(ctx, sink); err != nil && ctx.Err() == nil {
			log.Println("[ERR] change notification stream died:", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sink:
			payload, ok := this.refetch(ctx, ev)
			if !ok {
				continue
			}
			select {
			case this.updates <- payload:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (this *Gateway) refetch(ctx context.Context, ev store.ChangeEvent) (protocol.Payload, bool) {
	switch ev.Table {
	case store.TableBow:
		bows, err := this.store.BowsByIds(ctx, ev.Ids)
		if err != nil || len(bows) == 0 {
			return warnRefetch(ev, err)
		}
		return protocol.BowList(bows), true
	case store.TableArrow:
		arrows, err := this.store.ArrowsByIds(ctx, ev.Ids)
		if err != nil || len(arrows) == 0 {
			return warnRefetch(ev, err)
		}
		return protocol.ArrowList(arrows), true
	case store.TableMeasureSeries:
		series, err := this.store.MeasureSeriesByIds(ctx, ev.Ids)
		if err != nil || len(series) == 0 {
			return warnRefetch(ev, err)
		}
		return protocol.MeasureSeriesList(series), true
	case store.TableMeasure:
		measures, err := this.store.MeasuresByIds(ctx, ev.Ids)
		if err != nil || len(measures) == 0 {
			return warnRefetch(ev, err)
		}
		return protocol.MeasureList(measures), true
	case store.TableMeasurePoint:
		points, err := this.store.MeasurePointsByIds(ctx, ev.Ids)
		if err != nil || len(points) == 0 {
			return warnRefetch(ev, err)
		}
		return protocol.MeasurePointList(points), true
	}
	log.Printf("[WARN] change event for unknown table %q", ev.Table)
	return nil, false
}

func warnRefetch(ev store.ChangeEvent, err error) (protocol.Payload, bool) {
	if err != nil {
		log.Printf("[WARN] could not re-fetch %s rows %v: %v", ev.Table, ev.Ids, err)
	}
	return nil, false
}

// runFanout drains the pending-update queue in arrival order and pushes
// each update to every live session. A full or dead session just misses
// that update.
func (this *Gateway) runFanout(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-this.updates:
			env := protocol.UpdateOf(payload)
			for _, conn := range this.registry.Live() {
				conn.Send(env)
			}
		}
	}
}
