package middleware

import (
	"context"
	"net/http"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

// LocaleKey carries the negotiated UI locale through the request context.
var LocaleKey = localeContextKey{}

// supportedLocales lists the locales user-facing messages exist in; the
// first entry is the fallback.
var supportedLocales = []language.Tag{
	language.TraditionalChinese, // zh-TW, the product's home locale
	language.English,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// I18N resolves the request locale from the X-Locale header, then
// Accept-Language, falling back to Traditional Chinese.
func I18N() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LocaleFromContext returns the negotiated locale, defaulting to zh-TW.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok && v != "" {
		return v
	}
	return "zh-TW"
}

func detectLocale(r *http.Request) string {
	header := r.Header.Get("X-Locale")
	if header == "" {
		header = r.Header.Get("Accept-Language")
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return "zh-TW"
	}
	_, index, _ := localeMatcher.Match(tags...)
	if index == 1 {
		return "en"
	}
	return "zh-TW"
}
