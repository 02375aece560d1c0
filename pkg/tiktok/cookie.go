package tiktok

import (
	"net/http"
	"strings"
)

// importantCookies are the cookies TikTok checks when deciding whether
// a session is logged in. Missing ones are worth a log line, not an
// error.
var importantCookies = []string{"sessionid", "sessionid_ss", "msToken", "tt_chain_token", "sid_tt"}

// ParseCookie turns a raw cookie setting into name/value pairs. It
// accepts a full Cookie header ("sessionid=abc; msToken=def"), a bare
// sessionid value, and strips the surrounding quotes that .env files
// tend to grow.
func ParseCookie(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if len(raw) >= 2 {
		if (raw[0] == '"' && raw[len(raw)-1] == '"') || (raw[0] == '\'' && raw[len(raw)-1] == '\'') {
			raw = strings.TrimSpace(raw[1 : len(raw)-1])
		}
	}
	if raw == "" {
		return nil
	}

	if strings.Contains(raw, "=") {
		cookies := make(map[string]string)
		for _, part := range strings.Split(raw, ";") {
			part = strings.TrimSpace(part)
			name, value, ok := strings.Cut(part, "=")
			if !ok {
				continue
			}
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			cookies[name] = strings.TrimSpace(value)
		}
		return cookies
	}

	// bare value, assume it is the sessionid
	return map[string]string{"sessionid": raw}
}

// CookieHeader renders parsed cookies back into a Cookie header value.
func CookieHeader(cookies map[string]string) string {
	pairs := make([]string, 0, len(cookies))
	// keep sessionid first for readability in logs and debugging
	if v, ok := cookies["sessionid"]; ok {
		pairs = append(pairs, "sessionid="+v)
	}
	for name, value := range cookies {
		if name == "sessionid" {
			continue
		}
		pairs = append(pairs, name+"="+value)
	}
	return strings.Join(pairs, "; ")
}

// HTTPCookies converts parsed cookies for use with an http.Client jar.
func HTTPCookies(cookies map[string]string) []*http.Cookie {
	result := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		result = append(result, &http.Cookie{Name: name, Value: value, Domain: ".tiktok.com", Path: "/"})
	}
	return result
}

// MissingImportantCookies returns the login-relevant cookie names absent
// from the parsed set.
func MissingImportantCookies(cookies map[string]string) []string {
	var missing []string
	for _, name := range importantCookies {
		if _, ok := cookies[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
