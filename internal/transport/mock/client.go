package mock

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/kitbuilder587/yxml/internal/transport"
)

var ErrNoResponses = errors.New("mock: no canned responses left")

type Request struct {
	Method  string
	URL     string
	Body    string
	Cookies []*http.Cookie
}

// Client отдает заранее заготовленные ответы по очереди.
type Client struct {
	Responses []transport.Response
	Error     error

	CallCount   int
	LastRequest Request
	AllRequests []Request

	cookies []*http.Cookie
	mu      sync.Mutex
}

func New() *Client {
	return &Client{}
}

func (c *Client) WithBodies(bodies ...string) *Client {
	for _, b := range bodies {
		c.Responses = append(c.Responses, transport.Response{Status: http.StatusOK, Body: b})
	}
	return c
}

func (c *Client) WithResponse(resp transport.Response) *Client {
	c.Responses = append(c.Responses, resp)
	return c
}

func (c *Client) WithError(err error) *Client {
	c.Error = err
	return c
}

func (c *Client) Get(ctx context.Context, rawURL string) (*transport.Response, error) {
	return c.next(ctx, Request{Method: http.MethodGet, URL: rawURL})
}

func (c *Client) Post(ctx context.Context, rawURL string, body []byte) (*transport.Response, error) {
	return c.next(ctx, Request{Method: http.MethodPost, URL: rawURL, Body: string(body)})
}

// KeepCookies запоминает куки ответа, одноименные заменяются.
func (c *Client) KeepCookies(resp *transport.Response) {
	if resp == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ck := range resp.Cookies {
		kept := c.cookies[:0]
		for _, old := range c.cookies {
			if old.Name != ck.Name {
				kept = append(kept, old)
			}
		}
		c.cookies = append(kept, ck)
	}
}

func (c *Client) Cookies() []*http.Cookie {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cookies
}

func (c *Client) next(ctx context.Context, req Request) (*transport.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req.Cookies = append([]*http.Cookie(nil), c.cookies...)
	c.CallCount++
	c.LastRequest = req
	c.AllRequests = append(c.AllRequests, req)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Error != nil {
		return nil, c.Error
	}
	if len(c.Responses) == 0 {
		return nil, ErrNoResponses
	}

	resp := c.Responses[0]
	c.Responses = c.Responses[1:]
	return &resp, nil
}

func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCount = 0
	c.LastRequest = Request{}
	c.AllRequests = nil
}
