package captcha

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/kitbuilder587/yxml/internal/domain"
	"github.com/kitbuilder587/yxml/internal/metrics"
	"github.com/kitbuilder587/yxml/internal/transport"
)

// Transport is what the protocol needs from the HTTP layer: the check
// request itself and a place to keep the cookie the API hands out after a
// solved challenge.
type Transport interface {
	Get(ctx context.Context, rawURL string) (*transport.Response, error)
	KeepCookies(resp *transport.Response)
}

// Resumer continues the interrupted search once a challenge is passed.
type Resumer interface {
	// Parse разбирает документ с результатами.
	Parse(body string) (*domain.SearchResult, error)
	// Replay повторяет последний поиск; false, если повторять нечего.
	Replay(ctx context.Context) (body string, ok bool, err error)
}

type Config struct {
	// VerifyURL - адрес проверки ответа, без параметров key/rep
	VerifyURL string
}

// Protocol drives captcha episodes for one session. The retry counter is
// shared with the session and is zero outside an episode.
type Protocol struct {
	client    Transport
	solver    Solver
	verifyURL string
	retries   int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func New(cfg Config, client Transport, solver Solver, logger *zap.Logger, m *metrics.Metrics) *Protocol {
	return &Protocol{
		client:    client,
		solver:    solver,
		verifyURL: cfg.VerifyURL,
		logger:    logger,
		metrics:   m,
	}
}

func (p *Protocol) Retries() int { return p.retries }

func (p *Protocol) ResetRetries() { p.retries = 0 }

// Resolve answers the challenge in raw and, when resume is set, returns the
// results of the interrupted search. maxRetries > 0 bounds the number of
// rejected answers; a negative value means no bound, so only ctx stops the
// episode. With resume == false a passed challenge returns (nil, nil).
func (p *Protocol) Resolve(ctx context.Context, raw string, maxRetries int, resume bool, r Resumer) (*domain.SearchResult, error) {
	log := p.logger.With(zap.String("captcha_episode", xid.New().String()))

	res, err := p.run(ctx, log, raw, maxRetries, resume, r)
	p.retries = 0
	if err != nil {
		log.Warn("captcha episode failed", zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (p *Protocol) run(ctx context.Context, log *zap.Logger, body string, maxRetries int, resume bool, r Resumer) (*domain.SearchResult, error) {
	if p.solver == nil {
		return nil, domain.ErrNoSolver
	}
	if resume && r == nil {
		return nil, domain.ErrUnrecoverable
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("captcha: %w", err)
		}

		ch, err := ParseChallenge(body)
		if err != nil {
			return nil, err
		}

		answer, err := p.solver.Solve(ctx, ch.ImageURL)
		if err != nil {
			p.metrics.RecordCaptchaRound("solve_failed")
			return nil, fmt.Errorf("%w: %v", domain.ErrSolveFailed, err)
		}
		answer = strings.TrimSpace(answer)
		if answer == "" {
			p.metrics.RecordCaptchaRound("solve_failed")
			return nil, fmt.Errorf("%w: empty answer for %s", domain.ErrSolveFailed, ch.ImageURL)
		}

		resp, err := p.submit(ctx, ch.Key, answer)
		if err != nil {
			return nil, err
		}

		if IsChallenge(resp) {
			p.metrics.RecordCaptchaRound("rejected")
			if err := p.countRetry(log, maxRetries); err != nil {
				return nil, err
			}
			body = resp
			continue
		}

		p.metrics.RecordCaptchaRound("passed")
		if !resume {
			log.Debug("captcha passed")
			return nil, nil
		}

		if IsResults(resp) {
			log.Debug("captcha passed, results received")
			body = resp
		} else {
			replayed, ok, err := r.Replay(ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, domain.ErrUnrecoverable
			}
			log.Debug("captcha passed, search replayed")
			body = replayed
		}

		res, err := r.Parse(body)
		var apiErr *domain.APIError
		if errors.As(err, &apiErr) && apiErr.Code == domain.CodeCaptcha {
			// сервер выдал новую капчу на повторный запрос
			if err := p.countRetry(log, maxRetries); err != nil {
				return nil, err
			}
			continue
		}
		return res, err
	}
}

func (p *Protocol) countRetry(log *zap.Logger, maxRetries int) error {
	p.retries++
	if maxRetries > 0 && p.retries >= maxRetries {
		return fmt.Errorf("%w: %d attempts", domain.ErrRetryLimitExceeded, p.retries)
	}

	fields := []zap.Field{zap.Int("attempt", p.retries)}
	if maxRetries > 0 {
		fields = append(fields, zap.Int("remaining", maxRetries-p.retries))
	}
	log.Warn("captcha answer rejected", fields...)
	return nil
}

func (p *Protocol) submit(ctx context.Context, key, answer string) (string, error) {
	u, err := url.Parse(p.verifyURL)
	if err != nil {
		return "", fmt.Errorf("captcha verify url: %w", err)
	}
	q := u.Query()
	q.Set("key", key)
	q.Set("rep", answer)
	u.RawQuery = q.Encode()

	resp, err := p.client.Get(ctx, u.String())
	if err != nil {
		return "", fmt.Errorf("submit captcha: %w", err)
	}

	if len(resp.Cookies) > 0 {
		p.client.KeepCookies(resp)
	}
	return resp.Body, nil
}
