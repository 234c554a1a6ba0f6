package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/kitbuilder587/yxml/internal/domain"
)

var ErrUnknownFormat = errors.New("unknown output format")

const (
	FormatText = "txt"
	FormatJSON = "json"
	FormatXML  = "xml"
)

const timeLayout = "2006-01-02 15:04:05"

// Write выводит результат в одном из форматов. Пустой результат - пустой вывод.
func Write(w io.Writer, format string, res *domain.SearchResult, raw string) error {
	switch format {
	case FormatText, FormatJSON, FormatXML:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if res == nil || res.Empty() {
		return nil
	}

	switch format {
	case FormatJSON:
		return writeJSON(w, res)
	case FormatXML:
		_, err := io.WriteString(w, raw)
		return err
	default:
		_, err := io.WriteString(w, Text(res))
		return err
	}
}

func writeJSON(w io.Writer, res *domain.SearchResult) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return enc.Encode(res)
}
