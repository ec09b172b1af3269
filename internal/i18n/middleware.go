package i18n

import "net/http"

// LangCookie holds a language chosen explicitly by the user.
const LangCookie = "lang"

// Middleware negotiates the request language from the lang query parameter,
// the lang cookie and Accept-Language, in that order, and stores it with a
// matching localizer in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var prefs []string
		if q := r.URL.Query().Get("lang"); q != "" {
			prefs = append(prefs, q)
		}
		if c, err := r.Cookie(LangCookie); err == nil {
			prefs = append(prefs, c.Value)
		}
		prefs = append(prefs, r.Header.Get("Accept-Language"))

		lang := Match(prefs...)
		ctx := WithLang(r.Context(), lang)
		ctx = WithLocalizer(ctx, NewLocalizer(lang))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
