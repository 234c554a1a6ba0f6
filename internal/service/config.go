package service

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/kitbuilder587/yxml/internal/captcha"
	"github.com/kitbuilder587/yxml/internal/domain"
	"github.com/kitbuilder587/yxml/internal/transport"
)

// DefaultCaptchaRetries - без ограничения, эпизод прерывается только контекстом
const DefaultCaptchaRetries = -1

// Config is the session configuration. It changes only through Reset.
type Config struct {
	User   string
	APIKey string
	Mode   domain.Mode
	// IP - адрес, зарегистрированный в кабинете; пустой - определить автоматически
	IP    netip.Addr
	Proxy string
	// Endpoint overrides https://yandex.com or https://yandex.ru.
	Endpoint       string
	Solver         captcha.Solver
	CaptchaRetries int
	Timeout        time.Duration
}

// ConfigDelta lists the fields to change on Reset; nil means keep.
type ConfigDelta struct {
	User           *string
	APIKey         *string
	Mode           *domain.Mode
	IP             *netip.Addr
	Proxy          *string
	Endpoint       *string
	Solver         captcha.Solver
	CaptchaRetries *int
	Timeout        *time.Duration
}

func (c Config) apply(d ConfigDelta) Config {
	if d.User != nil {
		c.User = *d.User
	}
	if d.APIKey != nil {
		c.APIKey = *d.APIKey
	}
	if d.Mode != nil {
		c.Mode = *d.Mode
	}
	if d.IP != nil {
		c.IP = *d.IP
	}
	if d.Proxy != nil {
		c.Proxy = *d.Proxy
	}
	if d.Endpoint != nil {
		c.Endpoint = *d.Endpoint
	}
	if d.Solver != nil {
		c.Solver = d.Solver
	}
	if d.CaptchaRetries != nil {
		c.CaptchaRetries = *d.CaptchaRetries
	}
	if d.Timeout != nil {
		c.Timeout = *d.Timeout
	}
	return c
}

func (c Config) validate() error {
	if !c.Mode.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidMode, c.Mode)
	}
	if c.Proxy != "" {
		if _, err := transport.ParseProxy(c.Proxy); err != nil {
			return err
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("negative timeout %s", c.Timeout)
	}
	return nil
}

func (c Config) baseURL() string {
	if c.Endpoint != "" {
		return strings.TrimRight(c.Endpoint, "/")
	}
	return "https://" + c.Mode.Host()
}

// ParseIP разбирает адрес из конфигурации; пустая строка - нулевой адрес.
func ParseIP(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", domain.ErrInvalidIP, s)
	}
	return addr, nil
}
