package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/yxml/internal/captcha"
	"github.com/kitbuilder587/yxml/internal/domain"
	"github.com/kitbuilder587/yxml/internal/ipdetect"
	"github.com/kitbuilder587/yxml/internal/metrics"
	"github.com/kitbuilder587/yxml/internal/parser"
	"github.com/kitbuilder587/yxml/internal/quota"
	"github.com/kitbuilder587/yxml/internal/render"
	"github.com/kitbuilder587/yxml/internal/transport"
)

// SessionDeps - зависимости, которые не меняются при Reset.
type SessionDeps struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// IPServices - echo сервисы для автоопределения IP; пусто - ipdetect.DefaultServices
	IPServices []string
}

type lastSearch struct {
	query   string
	grouped bool
}

// Session owns the configuration and state of one API user: the transport
// with its cookies, the quota tracker, the captcha protocol and the latest
// parsed result. A Session is not safe for concurrent use.
type Session struct {
	cfg  Config
	deps SessionDeps

	client  *transport.Client
	quota   *quota.Tracker
	captcha *captcha.Protocol
	urls    endpoints

	last   *lastSearch
	raw    string
	result domain.SearchResult

	logger  *zap.Logger
	metrics *metrics.Metrics
}

type parts struct {
	cfg     Config
	client  *transport.Client
	quota   *quota.Tracker
	captcha *captcha.Protocol
	urls    endpoints
}

func NewSession(ctx context.Context, cfg Config, deps SessionDeps) (*Session, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := &Session{
		deps:    deps,
		logger:  deps.Logger,
		metrics: deps.Metrics,
	}

	p, err := s.build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.commit(p)
	return s, nil
}

// Reset applies delta and rebuilds everything derived from the
// configuration. Cookies, the remembered search, the raw body, the result
// and the quota are dropped. On error the session is left as it was.
func (s *Session) Reset(ctx context.Context, delta ConfigDelta) error {
	p, err := s.build(ctx, s.cfg.apply(delta))
	if err != nil {
		s.logger.Warn("session reset rejected", zap.Error(err))
		return err
	}
	s.commit(p)
	return nil
}

func (s *Session) build(ctx context.Context, cfg Config) (*parts, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = transport.DefaultTimeout
	}

	if !cfg.IP.IsValid() {
		probe, err := transport.New(transport.Config{Timeout: cfg.Timeout, Proxy: cfg.Proxy}, s.deps.Logger)
		if err != nil {
			return nil, err
		}
		ip, err := ipdetect.New(probe, s.deps.IPServices, s.deps.Logger).Detect(ctx)
		if err != nil {
			return nil, err
		}
		cfg.IP = ip
	}

	client, err := transport.New(transport.Config{
		Timeout: cfg.Timeout,
		Proxy:   cfg.Proxy,
		Headers: map[string]string{"X-Real-Ip": cfg.IP.String()},
	}, s.deps.Logger)
	if err != nil {
		return nil, err
	}

	urls := buildEndpoints(cfg)
	return &parts{
		cfg:    cfg,
		client: client,
		urls:   urls,
		quota:  quota.New(quota.Config{URL: urls.limits, Mode: cfg.Mode}, client, s.deps.Logger, s.metrics),
		captcha: captcha.New(captcha.Config{VerifyURL: urls.verify},
			client, cfg.Solver, s.deps.Logger, s.metrics),
	}, nil
}

func (s *Session) commit(p *parts) {
	s.cfg = p.cfg
	s.client = p.client
	s.quota = p.quota
	s.captcha = p.captcha
	s.urls = p.urls

	s.last = nil
	s.raw = ""
	s.result = domain.SearchResult{}

	s.logger = s.deps.Logger.With(zap.String("user", s.cfg.User), zap.Stringer("mode", s.cfg.Mode))
	s.logger.Debug("session configured", zap.Stringer("ip", s.cfg.IP))
}

// Search normalizes query, posts it and returns the parsed result. API
// error 100 runs the captcha protocol with the session solver and the
// protocol outcome becomes the outcome of the search.
func (s *Session) Search(ctx context.Context, query string, grouped bool) (*domain.SearchResult, error) {
	start := time.Now()

	q := domain.NormalizeQuery(query)
	if q == "" {
		s.result = domain.SearchResult{}
		return nil, domain.ErrEmptyQuery
	}
	s.last = &lastSearch{query: q, grouped: grouped}

	body, err := s.post(ctx, q, grouped)
	if err != nil {
		s.raw = ""
		s.result = domain.SearchResult{}
		s.metrics.RecordSearch(searchStatus(err), time.Since(start))
		s.logger.Error("search request failed", zap.String("query", q), zap.Error(err))
		return nil, err
	}
	s.raw = body

	res, err := s.handle(ctx, body)
	s.metrics.RecordSearch(searchStatus(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	s.logger.Info("search done",
		zap.String("query", q),
		zap.Int("found", res.Found),
		zap.Int("groups", len(res.Groups)),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (s *Session) post(ctx context.Context, query string, grouped bool) (string, error) {
	body, err := buildRequest(query, grouped)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Post(ctx, s.urls.search, body)
	if err != nil {
		return "", err
	}
	return resp.Body, nil
}

func (s *Session) handle(ctx context.Context, body string) (*domain.SearchResult, error) {
	res, err := s.ParseResults(body)
	if err == nil {
		return res, nil
	}

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		s.logger.Error("cannot parse search response", zap.Error(err))
		return nil, err
	}
	s.report(apiErr)

	if apiErr.Code == domain.CodeCaptcha {
		return s.captcha.Resolve(ctx, body, s.cfg.CaptchaRetries, true, resumer{s})
	}
	return nil, err
}

// report counts the API error and logs what the operator can do about it.
func (s *Session) report(apiErr *domain.APIError) {
	s.metrics.RecordAPIError(apiErr.Code)

	switch apiErr.Code {
	case domain.CodeQuotaExhausted:
		period := "day"
		if s.cfg.Mode == domain.ModeRu {
			period = "hour"
		}
		s.logger.Warn("request quota exhausted, check NextLimit",
			zap.String("period", period), zap.String("message", apiErr.Message))
	case domain.CodeModeMismatch:
		s.logger.Warn("search mode does not match the IP registration, check the mode setting",
			zap.Stringer("mode", s.cfg.Mode), zap.Stringer("ip", s.cfg.IP), zap.String("message", apiErr.Message))
	case domain.CodeCaptcha:
		s.logger.Info("captcha requested")
	default:
		s.logger.Warn("api error", zap.Int("code", apiErr.Code), zap.String("message", apiErr.Message))
	}
}

// ParseResults replaces the stored result with the one parsed from body.
// The stored result is cleared first, so after a failure it is empty.
func (s *Session) ParseResults(body string) (*domain.SearchResult, error) {
	s.result = domain.SearchResult{}

	res, err := parser.Parse(body)
	if err != nil {
		return nil, err
	}

	s.result = *res
	s.captcha.ResetRetries()
	return res, nil
}

// resumer даёт протоколу капчи доступ к разбору и повтору поиска.
type resumer struct{ s *Session }

func (r resumer) Parse(body string) (*domain.SearchResult, error) {
	r.s.raw = body
	res, err := r.s.ParseResults(body)

	// очередная капча обрабатывается циклом протокола
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Code != domain.CodeCaptcha {
		r.s.report(apiErr)
	}
	return res, err
}

func (r resumer) Replay(ctx context.Context) (string, bool, error) {
	last := r.s.last
	if last == nil {
		return "", false, nil
	}
	body, err := r.s.post(ctx, last.query, last.grouped)
	if err != nil {
		return "", true, err
	}
	return body, true, nil
}

// FetchLimits queries the limits document now.
func (s *Session) FetchLimits(ctx context.Context) (domain.QuotaState, error) {
	return s.quota.FetchLimits(ctx)
}

// NextLimit - ближайший лимит (час в ru, сутки в world); false, если квоты неизвестны
func (s *Session) NextLimit(ctx context.Context) (domain.Limit, bool) {
	return s.quota.NextLimit(ctx)
}

func (s *Session) Quota() domain.QuotaState { return s.quota.State() }

// SolveSampleCaptcha asks the API for a test challenge and solves it
// without resuming any search.
func (s *Session) SolveSampleCaptcha(ctx context.Context, retries int) error {
	resp, err := s.client.Get(ctx, s.urls.sample)
	if err != nil {
		s.logger.Error("sample captcha request failed", zap.Error(err))
		return err
	}
	if _, err := s.captcha.Resolve(ctx, resp.Body, retries, false, nil); err != nil {
		return err
	}
	s.logger.Info("sample captcha solved")
	return nil
}

func (s *Session) Result() domain.SearchResult { return s.result }

func (s *Session) Raw() string { return s.raw }

func (s *Session) Config() Config { return s.cfg }

func (s *Session) Retries() int { return s.captcha.Retries() }

func (s *Session) WriteResults(w io.Writer, format string) error {
	if err := render.Write(w, format, &s.result, s.raw); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

func (s *Session) Logo(w io.Writer, opts render.LogoOptions) error {
	return render.Logo(w, s.result.FoundHuman, opts)
}

func searchStatus(err error) string {
	var apiErr *domain.APIError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &apiErr):
		return "api_error"
	case errors.Is(err, domain.ErrSolveFailed),
		errors.Is(err, domain.ErrRetryLimitExceeded),
		errors.Is(err, domain.ErrUnrecoverable),
		errors.Is(err, domain.ErrNoSolver),
		errors.Is(err, domain.ErrMalformedChallenge):
		return "captcha_failed"
	case errors.Is(err, domain.ErrTransport):
		return "transport_error"
	default:
		return "parse_error"
	}
}
