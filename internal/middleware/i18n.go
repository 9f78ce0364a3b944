// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/wildlife-licensing/internal/i18n"
)

// I18nMiddleware picks the first Accept-Language entry with a loaded catalogue.
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("lang", negotiateLanguage(c.GetHeader("Accept-Language")))
		c.Next()
	}
}

func negotiateLanguage(header string) string {
	// Handle cases like "en-AU,en;q=0.9,fr;q=0.8"
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.Split(part, ";")[0])
		if tag == "" {
			continue
		}
		tag = strings.ReplaceAll(tag, "-", "_")
		if i18n.IsSupported(tag) {
			return tag
		}
		if base, _, found := strings.Cut(tag, "_"); found && i18n.IsSupported(base) {
			return base
		}
	}
	return i18n.DefaultLanguage()
}
