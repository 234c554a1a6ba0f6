// Package ipdetect определяет внешний адрес машины через публичные echo-сервисы.
package ipdetect

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"go.uber.org/zap"

	"github.com/kitbuilder587/yxml/internal/domain"
	"github.com/kitbuilder587/yxml/internal/transport"
)

// DefaultServices answer a plain GET with the caller's address as text.
var DefaultServices = []string{
	"https://api.ipify.org",
	"https://ident.me",
	"https://ipecho.net/plain",
	"https://myexternalip.com/raw",
}

type Getter interface {
	Get(ctx context.Context, rawURL string) (*transport.Response, error)
}

type Detector struct {
	services []string
	client   Getter
	logger   *zap.Logger
}

// New returns a detector over services; nil or empty means DefaultServices.
func New(client Getter, services []string, logger *zap.Logger) *Detector {
	if len(services) == 0 {
		services = DefaultServices
	}
	return &Detector{services: services, client: client, logger: logger}
}

// Detect tries the services in order and returns the first valid address.
func (d *Detector) Detect(ctx context.Context) (netip.Addr, error) {
	var lastErr error
	for _, svc := range d.services {
		if err := ctx.Err(); err != nil {
			return netip.Addr{}, err
		}

		addr, err := d.query(ctx, svc)
		if err == nil {
			d.logger.Debug("external ip detected", zap.String("service", svc), zap.Stringer("ip", addr))
			return addr, nil
		}
		d.logger.Debug("ip service failed", zap.String("service", svc), zap.Error(err))
		lastErr = err
	}

	if lastErr == nil {
		return netip.Addr{}, fmt.Errorf("%w: no services configured", domain.ErrIPDetect)
	}
	return netip.Addr{}, fmt.Errorf("%w: %v", domain.ErrIPDetect, lastErr)
}

func (d *Detector) query(ctx context.Context, svc string) (netip.Addr, error) {
	resp, err := d.client.Get(ctx, svc)
	if err != nil {
		return netip.Addr{}, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return netip.Addr{}, fmt.Errorf("status %d", resp.Status)
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(resp.Body))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", domain.ErrInvalidIP, truncate(resp.Body, 64))
	}
	return addr, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
