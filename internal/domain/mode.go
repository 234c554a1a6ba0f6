package domain

type Mode string

const (
	ModeWorld Mode = "world"
	ModeRu    Mode = "ru"
)

func (m Mode) IsValid() bool {
	switch m {
	case ModeWorld, ModeRu:
		return true
	}
	return false
}

func (m Mode) String() string { return string(m) }

// Host - домен поиска для режима
func (m Mode) Host() string {
	if m == ModeRu {
		return "yandex.ru"
	}
	return "yandex.com"
}

// Locale - значение параметра l10n
func (m Mode) Locale() string {
	if m == ModeRu {
		return "ru"
	}
	return "en"
}
