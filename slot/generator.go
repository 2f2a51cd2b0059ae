package slot

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/chargeslot-backend/internal/o11y"
	"github.com/semanticallynull/chargeslot-backend/station"
)

// DefaultBatchSize bounds how many slots go into a single insert.
const DefaultBatchSize = 1000

type StationLookup interface {
	GetStation(ctx context.Context, id uuid.UUID) (station.Station, error)
}

// Writer is the part of the slot store the generator needs. InsertBatch must skip rows whose Key
// already exists and report only the rows it actually inserted. The slice is reused between
// calls and must not be retained.
type Writer interface {
	InsertBatch(ctx context.Context, slots []Slot) (int, error)
	DeleteFuture(ctx context.Context, stationID uuid.UUID, from time.Time) (int, error)
}

type GenerationResult struct {
	Created int `json:"total"`
	Purged  int `json:"purged"`
}

type Generator struct {
	stations  StationLookup
	slots     Writer
	logger    *slog.Logger
	metrics   *o11y.Metrics
	batchSize int
	loc       *time.Location
	now       func() time.Time
}

type GeneratorOption func(*Generator)

// WithBatchSize overrides DefaultBatchSize. Values below 1 are ignored.
func WithBatchSize(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithLocation sets the time zone in which startHour and endHour are interpreted.
func WithLocation(loc *time.Location) GeneratorOption {
	return func(g *Generator) {
		if loc != nil {
			g.loc = loc
		}
	}
}

func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		g.now = now
	}
}

func WithMetrics(m *o11y.Metrics) GeneratorOption {
	return func(g *Generator) {
		g.metrics = m
	}
}

func NewGenerator(stations StationLookup, slots Writer, logger *slog.Logger, opts ...GeneratorOption) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Generator{
		stations:  stations,
		slots:     slots,
		logger:    logger,
		batchSize: DefaultBatchSize,
		loc:       time.UTC,
		now:       time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate creates the slots described by cfg for every unit of every charger of the station.
// Windows that already started are skipped, as are windows that already exist.
func (g *Generator) Generate(ctx context.Context, stationID uuid.UUID, cfg GenerationConfig) (GenerationResult, error) {
	ctx, span := otel.Tracer("slot").Start(ctx, "Generator.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("station.id", stationID.String()),
		attribute.Int("slot.minutes", cfg.SlotMinutes),
		attribute.Int("slot.days_ahead", cfg.DaysAhead),
	)

	if err := cfg.Validate(); err != nil {
		return GenerationResult{}, err
	}

	st, err := g.stations.GetStation(ctx, stationID)
	if err != nil {
		return GenerationResult{}, err
	}

	now := g.now()
	var res GenerationResult

	if cfg.Regenerate {
		res.Purged, err = g.slots.DeleteFuture(ctx, stationID, now)
		if err != nil {
			return res, err
		}
	}

	batch := make([]Slot, 0, g.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := g.slots.InsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		res.Created += n
		batch = batch[:0]
		return nil
	}

	local := now.In(g.loc)
	step := time.Duration(cfg.SlotMinutes) * time.Minute
	createdAt := now.UTC()

	for day := 0; day < cfg.DaysAhead; day++ {
		for hour := cfg.StartHour; hour < cfg.EndHour; hour++ {
			for minute := 0; minute < 60; minute += cfg.SlotMinutes {
				start := time.Date(local.Year(), local.Month(), local.Day()+day, hour, minute, 0, 0, g.loc)
				if start.Before(now) {
					continue
				}
				end := start.Add(step)
				for ci, charger := range st.Chargers {
					for unit := 0; unit < charger.Count; unit++ {
						batch = append(batch, Slot{
							ID:           uuid.New(),
							StationID:    stationID,
							ChargerIndex: ci,
							UnitIndex:    unit,
							ChargerType:  string(charger.Type),
							StartTime:    start.UTC(),
							EndTime:      end.UTC(),
							CreatedAt:    createdAt,
						})
						if len(batch) == g.batchSize {
							if err := flush(); err != nil {
								return res, err
							}
						}
					}
				}
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	g.metrics.SlotsGenerated(res.Created, res.Purged)
	g.logger.InfoContext(ctx, "slots generated",
		"station_id", stationID,
		"created", res.Created,
		"purged", res.Purged,
	)
	span.SetAttributes(attribute.Int("slot.created", res.Created))
	return res, nil
}
