package captcha

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kitbuilder587/yxml/internal/domain"
	"github.com/kitbuilder587/yxml/internal/metrics"
	"github.com/kitbuilder587/yxml/internal/parser"
	"github.com/kitbuilder587/yxml/internal/transport"
	"github.com/kitbuilder587/yxml/internal/transport/mock"
)

func challenge(n int) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<yandexsearch version="1.0">
<response><error code="100">Robot request</error></response>
<captcha-img-url>http://captcha.example/img-%d.gif</captcha-img-url>
<captcha-key>key-%d</captcha-key>
<captcha-status>failed</captcha-status>
</yandexsearch>`, n, n)
}

const results = `<?xml version="1.0" encoding="utf-8"?>
<yandexsearch version="1.0">
<request><query>q</query><groupings><groupby attr="d" groups-on-page="100" docs-in-group="3"/></groupings></request>
<response><results><grouping>
<found-docs priority="all">7</found-docs>
<found-docs-human>7 found</found-docs-human>
<group><categ name="a.example"/><doccount>1</doccount><doc><url>http://a.example/</url></doc></group>
</grouping></results></response>
</yandexsearch>`

type fakeResumer struct {
	replay      []string
	parseCalls  int
	replayCalls int
}

func (f *fakeResumer) Parse(body string) (*domain.SearchResult, error) {
	f.parseCalls++
	return parser.Parse(body)
}

func (f *fakeResumer) Replay(ctx context.Context) (string, bool, error) {
	f.replayCalls++
	if len(f.replay) == 0 {
		return "", false, nil
	}
	body := f.replay[0]
	f.replay = f.replay[1:]
	return body, true, nil
}

type countingSolver struct {
	calls []string
	reply string
}

func (s *countingSolver) Solve(ctx context.Context, imageURL string) (string, error) {
	s.calls = append(s.calls, imageURL)
	return s.reply, nil
}

func newProtocol(client Transport, solver Solver, m *metrics.Metrics) *Protocol {
	return New(Config{VerifyURL: "https://yandex.com/xcheckcaptcha"}, client, solver, zap.NewNop(), m)
}

func TestResolve_SucceedsAfterRejections(t *testing.T) {
	// первая капча пришла в ответ на поиск, дальше ответы проверки
	client := mock.New().WithBodies(challenge(2), challenge(3), results)
	solver := &countingSolver{reply: "answer"}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := newProtocol(client, solver, m)
	r := &fakeResumer{}

	res, err := p.Resolve(context.Background(), challenge(1), 3, true, r)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res == nil || res.Found != 7 {
		t.Fatalf("result = %+v, want found=7", res)
	}
	if p.Retries() != 0 {
		t.Errorf("Retries() = %d, want 0 after success", p.Retries())
	}
	if len(solver.calls) != 3 {
		t.Errorf("solver calls = %d, want 3", len(solver.calls))
	}
	if r.replayCalls != 0 {
		t.Error("results came with the check response, replay is not needed")
	}
	if got := testutil.ToFloat64(m.CaptchaRoundsTotal.WithLabelValues("rejected")); got != 2 {
		t.Errorf("rejected rounds = %v, want 2", got)
	}
}

func TestResolve_RetryLimit(t *testing.T) {
	client := mock.New().WithBodies(challenge(2), challenge(3), results)
	solver := &countingSolver{reply: "answer"}
	p := newProtocol(client, solver, nil)

	_, err := p.Resolve(context.Background(), challenge(1), 2, true, &fakeResumer{})
	if !errors.Is(err, domain.ErrRetryLimitExceeded) {
		t.Fatalf("Resolve() error = %v, want ErrRetryLimitExceeded", err)
	}
	if len(solver.calls) != 2 {
		t.Errorf("solver calls = %d, want 2 (no third solve)", len(solver.calls))
	}
	if p.Retries() != 0 {
		t.Errorf("Retries() = %d, want 0 after terminal failure", p.Retries())
	}
}

func TestResolve_SubmitsKeyAndKeepsCookie(t *testing.T) {
	cookie := &http.Cookie{Name: "spravka", Value: "granted"}
	client := mock.New().WithResponse(transport.Response{Status: 200, Body: results, Cookies: []*http.Cookie{cookie}})
	solver := SolverFunc(func(ctx context.Context, imageURL string) (string, error) {
		if imageURL != "http://captcha.example/img-1.gif" {
			t.Errorf("imageURL = %q", imageURL)
		}
		return " two words \n", nil
	})
	p := newProtocol(client, solver, nil)

	if _, err := p.Resolve(context.Background(), challenge(1), -1, true, &fakeResumer{}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	u, err := url.Parse(client.LastRequest.URL)
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/xcheckcaptcha" {
		t.Errorf("path = %q", u.Path)
	}
	if u.Query().Get("key") != "key-1" || u.Query().Get("rep") != "two words" {
		t.Errorf("query = %v", u.Query())
	}
	if got := client.Cookies(); len(got) != 1 || got[0].Value != "granted" {
		t.Errorf("kept cookies = %v", got)
	}
}

func TestResolve_ProbeMode(t *testing.T) {
	client := mock.New().WithBodies("<ok/>")
	p := newProtocol(client, &countingSolver{reply: "x"}, nil)

	res, err := p.Resolve(context.Background(), challenge(1), 3, false, nil)
	if err != nil || res != nil {
		t.Errorf("Resolve() = %v, %v, want nil, nil", res, err)
	}
}

func TestResolve_Replay(t *testing.T) {
	client := mock.New().WithBodies("<spravka/>")
	p := newProtocol(client, &countingSolver{reply: "x"}, nil)
	r := &fakeResumer{replay: []string{results}}

	res, err := p.Resolve(context.Background(), challenge(1), 3, true, r)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if r.replayCalls != 1 || res.Found != 7 {
		t.Errorf("replayCalls = %d, res = %+v", r.replayCalls, res)
	}
}

func TestResolve_ReplayHitsCaptchaAgain(t *testing.T) {
	client := mock.New().WithBodies("<spravka/>", "<spravka/>")
	solver := &countingSolver{reply: "x"}
	p := newProtocol(client, solver, nil)
	r := &fakeResumer{replay: []string{challenge(2), results}}

	res, err := p.Resolve(context.Background(), challenge(1), -1, true, r)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Found != 7 || len(solver.calls) != 2 || r.replayCalls != 2 {
		t.Errorf("res = %+v, solves = %d, replays = %d", res, len(solver.calls), r.replayCalls)
	}
}

func TestResolve_Failures(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		bodies  []string
		solver  Solver
		resumer Resumer
		wantErr error
	}{
		{
			name:    "no solver",
			raw:     challenge(1),
			resumer: &fakeResumer{},
			wantErr: domain.ErrNoSolver,
		},
		{
			name:    "malformed challenge",
			raw:     `<yandexsearch><response><error code="100">Robot</error></response></yandexsearch>`,
			solver:  &countingSolver{reply: "x"},
			resumer: &fakeResumer{},
			wantErr: domain.ErrMalformedChallenge,
		},
		{
			name:    "malformed xml",
			raw:     "not xml at all",
			solver:  &countingSolver{reply: "x"},
			resumer: &fakeResumer{},
			wantErr: domain.ErrMalformedXML,
		},
		{
			name:    "empty answer",
			raw:     challenge(1),
			solver:  &countingSolver{reply: "  "},
			resumer: &fakeResumer{},
			wantErr: domain.ErrSolveFailed,
		},
		{
			name: "solver error",
			raw:  challenge(1),
			solver: SolverFunc(func(ctx context.Context, imageURL string) (string, error) {
				return "", errors.New("ocr down")
			}),
			resumer: &fakeResumer{},
			wantErr: domain.ErrSolveFailed,
		},
		{
			name:    "nothing to replay",
			raw:     challenge(1),
			bodies:  []string{"<spravka/>"},
			solver:  &countingSolver{reply: "x"},
			resumer: &fakeResumer{},
			wantErr: domain.ErrUnrecoverable,
		},
		{
			name:    "transport failure",
			raw:     challenge(1),
			solver:  &countingSolver{reply: "x"},
			resumer: &fakeResumer{},
			wantErr: mock.ErrNoResponses,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mock.New().WithBodies(tt.bodies...)
			p := newProtocol(client, tt.solver, nil)

			res, err := p.Resolve(context.Background(), tt.raw, 3, true, tt.resumer)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
			}
			if res != nil {
				t.Errorf("Resolve() result = %+v on failure", res)
			}
			if p.Retries() != 0 {
				t.Errorf("Retries() = %d, want 0", p.Retries())
			}
		})
	}
}

func TestResolve_UnlimitedStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// сервер бесконечно отвечает новой капчей
	rounds := 0
	client := &endlessChallenges{}
	solver := SolverFunc(func(context.Context, string) (string, error) {
		rounds++
		if rounds == 5 {
			cancel()
		}
		return "x", nil
	})
	p := newProtocol(client, solver, nil)

	_, err := p.Resolve(ctx, challenge(1), -1, true, &fakeResumer{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Resolve() error = %v, want context.Canceled", err)
	}
	if rounds != 5 {
		t.Errorf("rounds = %d, want 5", rounds)
	}
}

type endlessChallenges struct{ n int }

func (e *endlessChallenges) Get(ctx context.Context, rawURL string) (*transport.Response, error) {
	e.n++
	return &transport.Response{Status: 200, Body: challenge(e.n + 1)}, nil
}

func (e *endlessChallenges) KeepCookies(*transport.Response) {}

func TestParseChallenge(t *testing.T) {
	ch, err := ParseChallenge(challenge(4))
	if err != nil {
		t.Fatalf("ParseChallenge() error = %v", err)
	}
	if ch.ImageURL != "http://captcha.example/img-4.gif" || ch.Key != "key-4" || ch.Status != "failed" {
		t.Errorf("challenge = %+v", ch)
	}
}

func TestSignatures(t *testing.T) {
	if !IsChallenge(challenge(1)) {
		t.Error("IsChallenge(challenge) = false")
	}
	if IsChallenge(results) {
		t.Error("IsChallenge(results) = true")
	}
	if !IsResults(results) {
		t.Error("IsResults(results) = false")
	}
	if IsResults(challenge(1)) || IsResults(strings.Replace(results, "<found-docs", "<x", -1)) {
		t.Error("IsResults should need both markers")
	}
}
