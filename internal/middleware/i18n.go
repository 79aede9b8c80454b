// internal/middleware/i18n.go
package middleware

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/imi-ownership/internal/i18n"
)

// I18nMiddleware picks the highest-weighted supported locale from Accept-Language.
func I18nMiddleware(defaultLang string) gin.HandlerFunc {
	if !i18n.IsSupported(defaultLang) {
		defaultLang = "en"
	}
	return func(c *gin.Context) {
		lang := negotiateLocale(c.GetHeader("Accept-Language"), defaultLang)
		c.Set("lang", lang)
		c.Next()
	}
}

type weightedLocale struct {
	tag string
	q   float64
}

func negotiateLocale(header, fallback string) string {
	if header == "" {
		return fallback
	}

	var candidates []weightedLocale
	for _, part := range strings.Split(header, ",") {
		tag, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			q = parsed
		}
		if tag == "" || q <= 0 {
			continue
		}
		candidates = append(candidates, weightedLocale{tag: tag, q: q})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].q > candidates[j].q })

	for _, cand := range candidates {
		if locale := localeFor(cand.tag); locale != "" && i18n.IsSupported(locale) {
			return locale
		}
	}
	return fallback
}

// localeFor maps a BCP 47 tag to a catalog name. Plain "zh" is left unmatched since
// only the traditional catalog exists.
func localeFor(tag string) string {
	tag = strings.ReplaceAll(strings.ToLower(tag), "_", "-")
	switch {
	case tag == "zh-tw", tag == "zh-hk", strings.HasPrefix(tag, "zh-hant"):
		return "zh_TW"
	case tag == "en", strings.HasPrefix(tag, "en-"):
		return "en"
	}
	return ""
}
