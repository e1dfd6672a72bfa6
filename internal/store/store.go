// Package store is the storage abstraction: the only component that
// touches persisted records. One relational backend (sqlite) and one
// in-memory backend exist; everything above them talks through Store.
package store

import (
	"context"

	"arrowctl/internal/models"
)

// Table names as they appear in change events.
const (
	TableBow           = "bow"
	TableArrow         = "arrow"
	TableMeasureSeries = "measure_series"
	TableMeasure       = "measure"
	TableMeasurePoint  = "measure_point"
)

// ChangeEvent is a backend-emitted hint that rows changed. It names the
// affected ids, never their contents; consumers re-query the rows they
// care about.
type ChangeEvent struct {
	Table string `codec:"table"`
	Ids   []int  `codec:"ids"`
}

// Store is the capability contract over the six record kinds. Query
// failures are per-request errors, never process faults. Listen consumes
// the backend's change-notification stream and forwards one ChangeEvent
// per notification into sink; it blocks until ctx is cancelled or the
// stream dies.
type Store interface {
	Bows(ctx context.Context) ([]models.Bow, error)
	BowsByIds(ctx context.Context, ids []int) ([]models.Bow, error)
	AddBow(ctx context.Context, bow models.Bow) (models.Bow, error)
	UpdateBow(ctx context.Context, bow models.Bow) (models.Bow, error)
	DeleteBow(ctx context.Context, id int) (int, error)

	Arrows(ctx context.Context, bowId int) ([]models.Arrow, error)
	ArrowsByIds(ctx context.Context, ids []int) ([]models.Arrow, error)
	AddArrow(ctx context.Context, arrow models.Arrow) (models.Arrow, error)

	MeasureSeries(ctx context.Context, bowId int) ([]models.MeasureSeries, error)
	MeasureSeriesByIds(ctx context.Context, ids []int) ([]models.MeasureSeries, error)
	AddMeasureSeries(ctx context.Context, series models.MeasureSeries) (models.MeasureSeries, error)

	Measures(ctx context.Context, seriesId int) ([]models.Measure, error)
	MeasuresByIds(ctx context.Context, ids []int) ([]models.Measure, error)
	AddMeasure(ctx context.Context, measure models.Measure) (models.Measure, error)

	MeasurePoints(ctx context.Context, measureId int) ([]models.MeasurePoint, error)
	MeasurePointsByIds(ctx context.Context, ids []int) ([]models.MeasurePoint, error)

	Listen(ctx context.Context, sink chan<- ChangeEvent) error
}
