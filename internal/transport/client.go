package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/kitbuilder587/yxml/internal/domain"
)

const DefaultTimeout = 5 * time.Second

// DefaultHeaders - заголовки, с которыми API отвечает стабильно
var DefaultHeaders = map[string]string{
	"Content-Type":    "text/xhtml+xml; charset=UTF-8",
	"Accept":          "application/xhtml+xml,application/xml",
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/74.0.3729.131 Safari/537.36",
	"Accept-Charset":  "utf-8",
	"Accept-Language": "ru,en-us",
	"Connection":      "close",
}

type Config struct {
	Timeout time.Duration
	Proxy   string
	Headers map[string]string
}

type Response struct {
	Status int
	Body   string
	// URL - адрес последнего запроса в цепочке редиректов
	URL *url.URL
	// Cookies set by every response of the exchange, redirect hops included.
	Cookies []*http.Cookie

	hops []hop
}

// Client is a blocking HTTP client. Cookies are kept only for the
// responses passed to KeepCookies; they live in a jar until the client is
// rebuilt.
type Client struct {
	client  *http.Client
	headers map[string]string
	jar     *cookiejar.Jar
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := ParseProxy(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		tr.Proxy = http.ProxyURL(proxyURL)
	}

	headers := make(map[string]string, len(DefaultHeaders)+len(cfg.Headers))
	for k, v := range DefaultHeaders {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	for k, v := range cfg.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	return &Client{
		client:  &http.Client{Timeout: cfg.Timeout, Transport: tr},
		headers: headers,
		jar:     jar,
		logger:  logger,
	}, nil
}

func ParseProxy(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidProxy, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidProxy, raw)
	}
	return u, nil
}

func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil)
}

func (c *Client) Post(ctx context.Context, rawURL string, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, rawURL, body)
}

// KeepCookies запоминает куки ответа (например, после капчи) до пересоздания клиента.
// Expired and deleting cookies remove what was kept under the same name.
func (c *Client) KeepCookies(resp *Response) {
	if resp == nil {
		return
	}
	if len(resp.hops) == 0 {
		if resp.URL != nil && len(resp.Cookies) > 0 {
			c.jar.SetCookies(resp.URL, resp.Cookies)
		}
		return
	}
	for _, h := range resp.hops {
		c.jar.SetCookies(h.url, h.cookies)
	}
}

// Cookies - куки, которые будут отправлены на rawURL
func (c *Client) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return c.jar.Cookies(u)
}

func (c *Client) Header(key string) string {
	return c.headers[http.CanonicalHeaderKey(key)]
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	ex := newExchangeJar(c.jar)
	hc := *c.client
	hc.Jar = ex

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		// в url.Error полный адрес с ключом
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("%w: %s %s: %w", domain.ErrTransport, method, redact(req.URL), err)
	}
	defer resp.Body.Close()

	text, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// API кладет ошибки в XML, тело отдаем как есть
		c.logger.Warn("unexpected http status",
			zap.String("method", method),
			zap.String("url", redact(req.URL)),
			zap.Int("status", resp.StatusCode),
		)
	}

	c.logger.Debug("http exchange",
		zap.String("method", method),
		zap.String("url", redact(req.URL)),
		zap.Int("status", resp.StatusCode),
		zap.Int("body_len", len(text)),
		zap.Duration("duration", time.Since(start)),
	)

	return &Response{
		Status:  resp.StatusCode,
		Body:    text,
		URL:     resp.Request.URL,
		Cookies: ex.received(),
		hops:    ex.hops,
	}, nil
}

// readBody returns the body as UTF-8 only when the Content-Type names
// another charset explicitly. Otherwise the bytes are kept as is and the
// XML decoder picks the encoding from the prolog.
func readBody(resp *http.Response) (string, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	label := contentCharset(resp.Header.Get("Content-Type"))
	if label == "" {
		return string(data), nil
	}
	enc, name := charset.Lookup(label)
	if enc == nil || name == "utf-8" {
		return string(data), nil
	}

	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", name, err)
	}
	return utf8Prolog(string(decoded)), nil
}

func contentCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["charset"])
}

var prologEncoding = regexp.MustCompile(`^(\s*<\?xml[^>]*?\sencoding\s*=\s*)(?:"[^"]*"|'[^']*')`)

// utf8Prolog переписывает encoding в прологе уже перекодированного документа
func utf8Prolog(body string) string {
	return prologEncoding.ReplaceAllString(body, `${1}"utf-8"`)
}

// redact прячет ключ API в логах
func redact(u *url.URL) string {
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "***")
	}
	c := *u
	c.RawQuery = q.Encode()
	return c.String()
}
