package quota

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/kitbuilder587/yxml/internal/domain"
	"github.com/kitbuilder587/yxml/internal/metrics"
	"github.com/kitbuilder587/yxml/internal/parser"
	"github.com/kitbuilder587/yxml/internal/transport"
)

// IntervalLayout - формат атрибута time-interval/@from
const IntervalLayout = "2006-01-02 15-04-05 -0700"

type Getter interface {
	Get(ctx context.Context, rawURL string) (*transport.Response, error)
}

type Config struct {
	URL  string
	Mode domain.Mode
}

// Tracker caches the limits document of one session.
type Tracker struct {
	client  Getter
	url     string
	mode    domain.Mode
	state   domain.QuotaState
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, client Getter, logger *zap.Logger, m *metrics.Metrics) *Tracker {
	return &Tracker{
		client:  client,
		url:     cfg.URL,
		mode:    cfg.Mode,
		state:   domain.NewQuotaState(),
		now:     time.Now,
		logger:  logger,
		metrics: m,
	}
}

// WithClock подменяет источник текущего времени (для тестов).
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) State() domain.QuotaState {
	return t.state
}

func (t *Tracker) Reset() {
	t.state = domain.NewQuotaState()
}

// FetchLimits requests the limits document. The cached state is replaced
// only when the new document parses.
func (t *Tracker) FetchLimits(ctx context.Context) (domain.QuotaState, error) {
	resp, err := t.client.Get(ctx, t.url)
	if err != nil {
		t.metrics.RecordLimits("error", 0)
		return t.state, fmt.Errorf("query limits: %w", err)
	}

	state, err := ParseLimits(resp.Body, t.mode)
	if err != nil {
		t.metrics.RecordLimits("error", 0)
		return t.state, fmt.Errorf("parse limits: %w", err)
	}

	t.state = state
	t.metrics.RecordLimits("ok", state.Day)
	t.logger.Debug("limits fetched",
		zap.String("mode", t.mode.String()),
		zap.Int("day", state.Day),
		zap.Int("hours", len(state.Hours)),
	)
	return state, nil
}

// NextLimit returns the nearest quota window: the first hour starting after
// now in ru mode, otherwise the day limit dated today. Limits are fetched
// only while the cached state is unknown; a failed fetch yields false.
func (t *Tracker) NextLimit(ctx context.Context) (domain.Limit, bool) {
	if !t.state.Known(t.mode) {
		if _, err := t.FetchLimits(ctx); err != nil {
			t.logger.Warn("cannot refresh request limits", zap.Error(err))
			return domain.Limit{}, false
		}
	}

	now := t.now()
	if t.mode == domain.ModeRu {
		for _, h := range t.state.Hours {
			if h.Start.After(now) {
				return domain.Limit{Start: h.Start, Limit: h.Limit, Hourly: true}, true
			}
		}
	}

	y, m, d := now.Date()
	return domain.Limit{
		Start: time.Date(y, m, d, 0, 0, 0, 0, now.Location()),
		Limit: t.state.Day,
	}, true
}

// ParseLimits reads response/limits. In ru mode every time-interval adds to
// the day total and is kept as an hour window; in world mode the API sends a
// single daily figure, so only the first interval is read.
func ParseLimits(body string, mode domain.Mode) (domain.QuotaState, error) {
	state := domain.NewQuotaState()

	root, err := parser.Load(body)
	if err != nil {
		return state, err
	}

	limits := xmlquery.FindOne(root, "response/limits")
	if limits == nil {
		return state, &domain.SectionError{Name: "response/limits"}
	}

	day := 0
	for _, interval := range xmlquery.Find(limits, ".//time-interval") {
		limit := parser.Int(interval, ".")

		if mode != domain.ModeRu {
			day = limit
			break
		}

		from := parser.Attr(interval, "from")
		start, err := time.Parse(IntervalLayout, from)
		if err != nil {
			return domain.NewQuotaState(), fmt.Errorf("%w: time-interval from=%q", domain.ErrMalformedXML, from)
		}
		day += limit
		state.Hours = append(state.Hours, domain.HourLimit{Start: start, Limit: limit})
	}

	sort.SliceStable(state.Hours, func(i, j int) bool {
		return state.Hours[i].Start.Before(state.Hours[j].Start)
	})
	state.Day = day
	return state, nil
}
