package shared

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys shown on wizard rows.
const (
	MsgReferenceNotFound = "reference not found"
	MsgMatchFound        = "match found"
	MsgPriceDifference   = "price difference"
	MsgPriceMismatch     = "price mismatch: file %s, order %s"
	MsgQuantityExceeds   = "quantity %s exceeds open quantity %s"
	MsgInvalidRow        = "invalid row: %s"
)

// turkishMessages translates every message key.
var turkishMessages = map[string]string{
	MsgReferenceNotFound: "referans bulunamadı",
	MsgMatchFound:        "eşleşme bulundu",
	MsgPriceDifference:   "fiyat farkı",
	MsgPriceMismatch:     "fiyat uyuşmazlığı: dosya %s, sipariş %s",
	MsgQuantityExceeds:   "miktar %s açık miktarı %s aşıyor",
	MsgInvalidRow:        "geçersiz satır: %s",
}

var messageCatalog = mustBuildCatalog(turkishMessages)

func buildCatalog(translations map[string]string) (*catalog.Builder, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, tr := range translations {
		if err := b.SetString(language.English, key, key); err != nil {
			return nil, fmt.Errorf("shared: catalog %q: %w", key, err)
		}
		if err := b.SetString(language.Turkish, key, tr); err != nil {
			return nil, fmt.Errorf("shared: catalog %q (tr): %w", key, err)
		}
	}
	return b, nil
}

func mustBuildCatalog(translations map[string]string) *catalog.Builder {
	b, err := buildCatalog(translations)
	if err != nil {
		panic(err)
	}
	return b
}

// Messages renders row messages in the configured locale.
type Messages struct {
	printer *message.Printer
}

// NewMessages returns a printer for locale, falling back to English for
// unknown or unsupported tags.
func NewMessages(locale string) *Messages {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	supported := messageCatalog.Languages()
	_, idx, conf := language.NewMatcher(supported).Match(tag)
	matched := language.English
	if conf != language.No {
		matched = supported[idx]
	}
	return &Messages{printer: message.NewPrinter(matched, message.Catalog(messageCatalog))}
}

// Sprintf formats key with args.
func (m *Messages) Sprintf(key string, args ...any) string {
	if m == nil {
		return NewMessages("en").Sprintf(key, args...)
	}
	return m.printer.Sprintf(key, args...)
}
