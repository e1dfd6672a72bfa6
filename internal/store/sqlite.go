package store

import (
	"context"
	"database/sql"

	"github.com/blockloop/scan"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"arrowctl/internal/models"
)

// Sqlite is the relational backend. Every list/add is a parameterized
// query; every committed mutation is announced on the notification bus so
// Listen (here and in any other process on the same bus) observes it.
type Sqlite struct {
	db       *sql.DB
	notifier *Notifier
	listen   string
}

// OpenSqlite opens (creating tables as needed) the database file and wires
// it to the change-notification bus. pubEndpoint is where mutations are
// announced, subEndpoint where Listen picks them up; with a single gateway
// process both point at the same bus address.
func OpenSqlite(path, pubEndpoint, subEndpoint string) (*Sqlite, error) {
	// foreign keys are off by default in sqlite; the schema's delete
	// cascades depend on them
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "create data tables")
	}
	notifier, err := NewNotifier(pubEndpoint)
	if err != nil {
		return nil, err
	}
	return &Sqlite{db: db, notifier: notifier, listen: subEndpoint}, nil
}

func (s *Sqlite) Close() error {
	s.notifier.Close()
	return s.db.Close()
}

func (s *Sqlite) Bows(ctx context.Context) ([]models.Bow, error) {
	rows, err := s.db.QueryContext(ctx, qBows)
	if err != nil {
		return nil, err
	}
	bows := []models.Bow{}
	if err := scan.RowsStrict(&bows, rows); err != nil {
		return nil, err
	}
	return bows, nil
}

func (s *Sqlite) BowsByIds(ctx context.Context, ids []int) ([]models.Bow, error) {
	if len(ids) == 0 {
		return []models.Bow{}, nil
	}
	rows, err := s.db.QueryContext(ctx, byIds(TableBow, len(ids)), args(ids)...)
	if err != nil {
		return nil, err
	}
	bows := []models.Bow{}
	if err := scan.RowsStrict(&bows, rows); err != nil {
		return nil, err
	}
	return bows, nil
}

func (s *Sqlite) AddBow(ctx context.Context, bow models.Bow) (models.Bow, error) {
	err := s.db.QueryRowContext(ctx, qInsertBow,
		bow.Name, bow.MaxDrawDistance, bow.RemainderArrowLength).Scan(&bow.Id)
	if err != nil {
		return models.Bow{}, err
	}
	s.notifier.Publish(ChangeEvent{Table: TableBow, Ids: []int{bow.Id}})
	return bow, nil
}

func (s *Sqlite) UpdateBow(ctx context.Context, bow models.Bow) (models.Bow, error) {
	res, err := s.db.ExecContext(ctx, qUpdateBow,
		bow.Name, bow.MaxDrawDistance, bow.RemainderArrowLength, bow.Id)
	if err != nil {
		return models.Bow{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Bow{}, errors.Errorf("no bow with id %d", bow.Id)
	}
	s.notifier.Publish(ChangeEvent{Table: TableBow, Ids: []int{bow.Id}})
	return bow, nil
}

func (s *Sqlite) DeleteBow(ctx context.Context, id int) (int, error) {
	if _, err := s.db.ExecContext(ctx, qDeleteBow, id); err != nil {
		return 0, err
	}
	s.notifier.Publish(ChangeEvent{Table: TableBow, Ids: []int{id}})
	return id, nil
}

func (s *Sqlite) Arrows(ctx context.Context, bowId int) ([]models.Arrow, error) {
	rows, err := s.db.QueryContext(ctx, qArrows, bowId)
	if err != nil {
		return nil, err
	}
	arrows := []models.Arrow{}
	if err := scan.RowsStrict(&arrows, rows); err != nil {
		return nil, err
	}
	return arrows, nil
}

func (s *Sqlite) ArrowsByIds(ctx context.Context, ids []int) ([]models.Arrow, error) {
	if len(ids) == 0 {
		return []models.Arrow{}, nil
	}
	rows, err := s.db.QueryContext(ctx, byIds(TableArrow, len(ids)), args(ids)...)
	if err != nil {
		return nil, err
	}
	arrows := []models.Arrow{}
	if err := scan.RowsStrict(&arrows, rows); err != nil {
		return nil, err
	}
	return arrows, nil
}

func (s *Sqlite) AddArrow(ctx context.Context, arrow models.Arrow) (models.Arrow, error) {
	err := s.db.QueryRowContext(ctx, qInsertArrow,
		arrow.Name, arrow.HeadWeight, arrow.Spline, arrow.FeatherLength,
		arrow.FeatherType, arrow.Length, arrow.Weight, arrow.BowId).Scan(&arrow.Id)
	if err != nil {
		return models.Arrow{}, err
	}
	s.notifier.Publish(ChangeEvent{Table: TableArrow, Ids: []int{arrow.Id}})
	return arrow, nil
}

func (s *Sqlite) MeasureSeries(ctx context.Context, bowId int) ([]models.MeasureSeries, error) {
	rows, err := s.db.QueryContext(ctx, qMeasureSeries, bowId)
	if err != nil {
		return nil, err
	}
	return scanSeries(rows)
}

func (s *Sqlite) MeasureSeriesByIds(ctx context.Context, ids []int) ([]models.MeasureSeries, error) {
	if len(ids) == 0 {
		return []models.MeasureSeries{}, nil
	}
	rows, err := s.db.QueryContext(ctx, byIds(TableMeasureSeries, len(ids)), args(ids)...)
	if err != nil {
		return nil, err
	}
	return scanSeries(rows)
}

func (s *Sqlite) AddMeasureSeries(ctx context.Context, series models.MeasureSeries) (models.MeasureSeries, error) {
	err := s.db.QueryRowContext(ctx, qInsertMeasureSeries,
		series.Name, series.RestPosition, series.DrawDistance, series.DrawForce,
		series.Time.Unix(), series.BowId).Scan(&series.Id)
	if err != nil {
		return models.MeasureSeries{}, err
	}
	s.notifier.Publish(ChangeEvent{Table: TableMeasureSeries, Ids: []int{series.Id}})
	return series, nil
}

func (s *Sqlite) Measures(ctx context.Context, seriesId int) ([]models.Measure, error) {
	rows, err := s.db.QueryContext(ctx, qMeasures, seriesId)
	if err != nil {
		return nil, err
	}
	measures := []models.Measure{}
	if err := scan.RowsStrict(&measures, rows); err != nil {
		return nil, err
	}
	return measures, nil
}

func (s *Sqlite) MeasuresByIds(ctx context.Context, ids []int) ([]models.Measure, error) {
	if len(ids) == 0 {
		return []models.Measure{}, nil
	}
	rows, err := s.db.QueryContext(ctx, byIds(TableMeasure, len(ids)), args(ids)...)
	if err != nil {
		return nil, err
	}
	measures := []models.Measure{}
	if err := scan.RowsStrict(&measures, rows); err != nil {
		return nil, err
	}
	return measures, nil
}

func (s *Sqlite) AddMeasure(ctx context.Context, measure models.Measure) (models.Measure, error) {
	err := s.db.QueryRowContext(ctx, qInsertMeasure,
		measure.MeasureInterval, measure.MeasureSeriesId, measure.ArrowId).Scan(&measure.Id)
	if err != nil {
		return models.Measure{}, err
	}
	s.notifier.Publish(ChangeEvent{Table: TableMeasure, Ids: []int{measure.Id}})
	return measure, nil
}

func (s *Sqlite) MeasurePoints(ctx context.Context, measureId int) ([]models.MeasurePoint, error) {
	rows, err := s.db.QueryContext(ctx, qMeasurePoints, measureId)
	if err != nil {
		return nil, err
	}
	points := []models.MeasurePoint{}
	if err := scan.RowsStrict(&points, rows); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Sqlite) MeasurePointsByIds(ctx context.Context, ids []int) ([]models.MeasurePoint, error) {
	if len(ids) == 0 {
		return []models.MeasurePoint{}, nil
	}
	rows, err := s.db.QueryContext(ctx, byIds(TableMeasurePoint, len(ids)), args(ids)...)
	if err != nil {
		return nil, err
	}
	points := []models.MeasurePoint{}
	if err := scan.RowsStrict(&points, rows); err != nil {
		return nil, err
	}
	return points, nil
}

// Listen subscribes to the notification bus and forwards change events
// into sink until ctx is cancelled.
func (s *Sqlite) Listen(ctx context.Context, sink chan<- ChangeEvent) error {
	return Subscribe(ctx, s.listen, sink)
}

func scanSeries(rows *sql.Rows) ([]models.MeasureSeries, error) {
	defer rows.Close()
	series := []models.MeasureSeries{}
	for rows.Next() {
		var sr models.MeasureSeries
		var ts int64
		if err := rows.Scan(&sr.Id, &sr.Name, &sr.RestPosition,
			&sr.DrawDistance, &sr.DrawForce, &ts, &sr.BowId); err != nil {
			return nil, err
		}
		sr.Time = models.FromUnix(ts)
		series = append(series, sr)
	}
	return series, rows.Err()
}

func args(ids []int) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
