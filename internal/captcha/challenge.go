package captcha

import (
	"strings"

	"github.com/kitbuilder587/yxml/internal/domain"
	"github.com/kitbuilder587/yxml/internal/parser"
)

// Challenge is the robot check sent with API error 100:
//
//	<yandexsearch>
//	  <response><error code="100">Robot request</error></response>
//	  <captcha-img-url>...</captcha-img-url>
//	  <captcha-key>...</captcha-key>
//	  <captcha-status>...</captcha-status>
//	</yandexsearch>
type Challenge struct {
	ImageURL string
	Key      string
	// Status is "failed" when the previous answer was rejected.
	Status string
}

func ParseChallenge(body string) (*Challenge, error) {
	root, err := parser.Load(body)
	if err != nil {
		return nil, err
	}

	ch := &Challenge{
		ImageURL: parser.Text(root, "captcha-img-url"),
		Key:      parser.Text(root, "captcha-key"),
		Status:   parser.Text(root, "captcha-status"),
	}
	if ch.ImageURL == "" || ch.Key == "" {
		return nil, domain.ErrMalformedChallenge
	}
	return ch, nil
}

// IsChallenge - в ответе снова капча (предыдущий ответ не принят)
func IsChallenge(body string) bool {
	return strings.Contains(body, `<error code="100">`) && strings.Contains(body, "<captcha-status>")
}

// IsResults - в ответе уже результаты поиска
func IsResults(body string) bool {
	return strings.Contains(body, "<results>") && strings.Contains(body, "<found-docs")
}
