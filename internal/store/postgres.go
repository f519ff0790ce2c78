package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

const saveBatchSize = 1000

// observationModel is a row of the observations table. NaN metrics are
// stored as NULL.
type observationModel struct {
	Cid       string    `gorm:"primaryKey;size:16"`
	Xcat      string    `gorm:"primaryKey;size:64"`
	RealDate  time.Time `gorm:"primaryKey;type:date"`
	Value     *float64
	Grading   *float64
	EopLag    *float64
	MopLag    *float64
	UpdatedAt time.Time
}

func (observationModel) TableName() string { return "observations" }

func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func modelFromObservation(o qdf.Observation, now time.Time) observationModel {
	return observationModel{
		Cid:       o.Cid,
		Xcat:      o.Xcat,
		RealDate:  qdf.Truncate(o.RealDate),
		Value:     nullable(o.Value),
		Grading:   nullable(o.Grading),
		EopLag:    nullable(o.EopLag),
		MopLag:    nullable(o.MopLag),
		UpdatedAt: now,
	}
}

func (m observationModel) toObservation() qdf.Observation {
	return qdf.Observation{
		Cid:      m.Cid,
		Xcat:     m.Xcat,
		RealDate: qdf.Truncate(m.RealDate),
		Value:    orNaN(m.Value),
		Grading:  orNaN(m.Grading),
		EopLag:   orNaN(m.EopLag),
		MopLag:   orNaN(m.MopLag),
	}
}

// Postgres archives observations in PostgreSQL.
type Postgres struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Connect opens and pings the database, then migrates the schema.
func Connect(dsn string, logger *slog.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, apperrors.NewConfigError("postgres dsn is required", nil)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, apperrors.NewStorageError("open gorm postgres", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperrors.NewStorageError("resolve postgres sql db handle", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, apperrors.NewStorageError("ping postgres", err)
	}

	p := NewPostgres(db, logger)
	if err := db.WithContext(ctx).AutoMigrate(&observationModel{}); err != nil {
		_ = sqlDB.Close()
		return nil, apperrors.NewStorageError("migrate observations", err)
	}
	return p, nil
}

// NewPostgres wraps an open gorm handle.
func NewPostgres(db *gorm.DB, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger.With(slog.String("component", "store"))}
}

// upsert replaces the metrics of rows that already exist.
func upsert() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "cid"}, {Name: "xcat"}, {Name: "real_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "grading", "eop_lag", "mop_lag", "updated_at"}),
	}
}

func (p *Postgres) Save(ctx context.Context, f qdf.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if len(f) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]observationModel, len(f))
	for i, o := range f {
		rows[i] = modelFromObservation(o, now)
	}
	res := p.db.WithContext(ctx).Clauses(upsert()).CreateInBatches(rows, saveBatchSize)
	if res.Error != nil {
		return p.logError(ctx, "store_save_failed", res.Error, slog.Int("rows", len(rows)))
	}
	p.logger.DebugContext(ctx, "observations saved", slog.Int("rows", len(rows)))
	return nil
}

// filterQuery applies flt to tx.
func filterQuery(tx *gorm.DB, flt Filter) *gorm.DB {
	if len(flt.Cids) > 0 {
		tx = tx.Where("cid IN ?", flt.Cids)
	}
	if len(flt.Xcats) > 0 {
		tx = tx.Where("xcat IN ?", flt.Xcats)
	}
	if len(flt.Tickers) > 0 {
		tx = tx.Where("cid || '_' || xcat IN ?", flt.Tickers)
	}
	if !flt.Start.IsZero() {
		tx = tx.Where("real_date >= ?", qdf.Truncate(flt.Start))
	}
	if !flt.End.IsZero() {
		tx = tx.Where("real_date <= ?", qdf.Truncate(flt.End))
	}
	return tx.Order("cid, xcat, real_date")
}

func (p *Postgres) Load(ctx context.Context, flt Filter) (qdf.Frame, error) {
	var rows []observationModel
	err := filterQuery(p.db.WithContext(ctx).Model(&observationModel{}), flt).Find(&rows).Error
	if err != nil {
		return nil, p.logError(ctx, "store_load_failed", err)
	}
	out := make(qdf.Frame, len(rows))
	for i, r := range rows {
		out[i] = r.toObservation()
	}
	return out, nil
}

func (p *Postgres) Tickers(ctx context.Context) ([]string, error) {
	var tickers []string
	err := p.db.WithContext(ctx).
		Raw("SELECT DISTINCT cid || '_' || xcat AS ticker FROM observations ORDER BY ticker").
		Scan(&tickers).Error
	if err != nil {
		return nil, p.logError(ctx, "store_tickers_failed", err)
	}
	return tickers, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Postgres) logError(ctx context.Context, event string, err error, attrs ...slog.Attr) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	args := []any{slog.String("error", err.Error())}
	for _, a := range attrs {
		args = append(args, a)
	}
	p.logger.ErrorContext(ctx, event, args...)
	return apperrors.NewStorageError(fmt.Sprintf("%s: %v", event, err), err)
}
