package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"arrowctl/internal/models"
)

// Memory is the in-process backend used by tests and offline runs. It
// emits change events on an internal queue, so the whole
// mutation→notification→re-query→broadcast path works without sqlite or a
// bus address.
type Memory struct {
	mu     sync.Mutex
	nextId int
	bows   map[int]models.Bow
	arrows map[int]models.Arrow
	series map[int]models.MeasureSeries
	runs   map[int]models.Measure
	points map[int]models.MeasurePoint
	events chan ChangeEvent
}

func NewMemory() *Memory {
	return &Memory{
		nextId: 1,
		bows:   map[int]models.Bow{},
		arrows: map[int]models.Arrow{},
		series: map[int]models.MeasureSeries{},
		runs:   map[int]models.Measure{},
		points: map[int]models.MeasurePoint{},
		events: make(chan ChangeEvent, 64),
	}
}

func (m *Memory) emit(table string, ids ...int) {
	select {
	case m.events <- ChangeEvent{Table: table, Ids: ids}:
	default:
		// an overrun queue drops hints, same as a lossy bus
	}
}

func (m *Memory) Bows(ctx context.Context) ([]models.Bow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Bow{}
	for _, b := range m.bows {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (m *Memory) BowsByIds(ctx context.Context, ids []int) ([]models.Bow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Bow{}
	for _, id := range ids {
		if b, ok := m.bows[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *Memory) AddBow(ctx context.Context, bow models.Bow) (models.Bow, error) {
	m.mu.Lock()
	bow.Id = m.nextId
	m.nextId++
	m.bows[bow.Id] = bow
	m.mu.Unlock()
	m.emit(TableBow, bow.Id)
	return bow, nil
}

func (m *Memory) UpdateBow(ctx context.Context, bow models.Bow) (models.Bow, error) {
	m.mu.Lock()
	if _, ok := m.bows[bow.Id]; !ok {
		m.mu.Unlock()
		return models.Bow{}, errors.Errorf("no bow with id %d", bow.Id)
	}
	m.bows[bow.Id] = bow
	m.mu.Unlock()
	m.emit(TableBow, bow.Id)
	return bow, nil
}

func (m *Memory) DeleteBow(ctx context.Context, id int) (int, error) {
	m.mu.Lock()
	delete(m.bows, id)
	m.mu.Unlock()
	m.emit(TableBow, id)
	return id, nil
}

func (m *Memory) Arrows(ctx context.Context, bowId int) ([]models.Arrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Arrow{}
	for _, a := range m.arrows {
		if a.BowId == bowId {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (m *Memory) ArrowsByIds(ctx context.Context, ids []int) ([]models.Arrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Arrow{}
	for _, id := range ids {
		if a, ok := m.arrows[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) AddArrow(ctx context.Context, arrow models.Arrow) (models.Arrow, error) {
	m.mu.Lock()
	arrow.Id = m.nextId
	m.nextId++
	m.arrows[arrow.Id] = arrow
	m.mu.Unlock()
	m.emit(TableArrow, arrow.Id)
	return arrow, nil
}

func (m *Memory) MeasureSeries(ctx context.Context, bowId int) ([]models.MeasureSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.MeasureSeries{}
	for _, s := range m.series {
		if s.BowId == bowId {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (m *Memory) MeasureSeriesByIds(ctx context.Context, ids []int) ([]models.MeasureSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.MeasureSeries{}
	for _, id := range ids {
		if s, ok := m.series[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) AddMeasureSeries(ctx context.Context, series models.MeasureSeries) (models.MeasureSeries, error) {
	m.mu.Lock()
	series.Id = m.nextId
	m.nextId++
	m.series[series.Id] = series
	m.mu.Unlock()
	m.emit(TableMeasureSeries, series.Id)
	return series, nil
}

func (m *Memory) Measures(ctx context.Context, seriesId int) ([]models.Measure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Measure{}
	for _, r := range m.runs {
		if r.MeasureSeriesId == seriesId {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (m *Memory) MeasuresByIds(ctx context.Context, ids []int) ([]models.Measure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Measure{}
	for _, id := range ids {
		if r, ok := m.runs[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) AddMeasure(ctx context.Context, measure models.Measure) (models.Measure, error) {
	m.mu.Lock()
	measure.Id = m.nextId
	m.nextId++
	m.runs[measure.Id] = measure
	m.mu.Unlock()
	m.emit(TableMeasure, measure.Id)
	return measure, nil
}

func (m *Memory) MeasurePoints(ctx context.Context, measureId int) ([]models.MeasurePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.MeasurePoint{}
	for _, p := range m.points {
		if p.MeasureId == measureId {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (m *Memory) MeasurePointsByIds(ctx context.Context, ids []int) ([]models.MeasurePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.MeasurePoint{}
	for _, id := range ids {
		if p, ok := m.points[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// AddMeasurePoints stands in for the hardware-side writer feeding samples
// into storage during a run.
func (m *Memory) AddMeasurePoints(ctx context.Context, points []models.MeasurePoint) error {
	m.mu.Lock()
	ids := make([]int, 0, len(points))
	for _, p := range points {
		p.Id = m.nextId
		m.nextId++
		m.points[p.Id] = p
		ids = append(ids, p.Id)
	}
	m.mu.Unlock()
	if len(ids) > 0 {
		m.emit(TableMeasurePoint, ids...)
	}
	return nil
}

// Inject pushes a raw change event, standing in for an external bus
// publisher.
func (m *Memory) Inject(ev ChangeEvent) {
	m.events <- ev
}

func (m *Memory) Listen(ctx context.Context, sink chan<- ChangeEvent) error {
	for {
		select {
		case ev := <-m.events:
			select {
			case sink <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
