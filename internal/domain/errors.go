package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTransport      = errors.New("transport failure")
	ErrMalformedXML   = errors.New("malformed xml")
	ErrMissingSection = errors.New("missing section")
)

var (
	ErrMalformedChallenge = fmt.Errorf("%w: captcha challenge without image url or key", ErrMalformedXML)
	ErrSolveFailed        = errors.New("captcha solve failed")
	ErrRetryLimitExceeded = errors.New("captcha retry limit exceeded")
	ErrUnrecoverable      = errors.New("cannot resume request after captcha")
)

var (
	ErrInvalidMode   = errors.New(`mode must be "world" or "ru"`)
	ErrNoSolver      = errors.New("captcha solver is not configured")
	ErrInvalidSolver = errors.New("captcha solver must be an executable or a script")
	ErrInvalidIP     = errors.New("invalid ip address")
	ErrInvalidProxy  = errors.New("invalid proxy url")
	ErrIPDetect      = errors.New("cannot detect external ip")
)

var (
	ErrEmptyQuery = errors.New("empty query")
)

// Коды ошибок API, которые обрабатываются отдельно.
const (
	CodeQuotaExhausted = 32
	CodeModeMismatch   = 48
	CodeCaptcha        = 100
)

// SectionError - в ответе нет обязательной секции.
type SectionError struct {
	Name string
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("%s %q", ErrMissingSection, e.Name)
}

func (e *SectionError) Unwrap() error { return ErrMissingSection }

// APIError is an <error code="..."> reported by the search API.
type APIError struct {
	Code    int
	Message string
	Raw     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ERROR %d: %s", e.Code, e.Message)
}
