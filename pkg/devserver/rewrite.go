package devserver

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultRewrite sends every path without a dot (i.e. everything that isn't a file) to the
// single-page app's index.
const DefaultRewrite = `^[^\.]*$ /index.html [L]`

// Rule is a single mod_rewrite style rule: "<regexp> <replacement> [flags]".
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
	// Inverted rules apply when the pattern doesn't match (written as "!<regexp>").
	Inverted bool
	// Last stops processing further rules.
	Last bool
	// Redirect is the status code for redirect rules; zero for internal rewrites.
	Redirect int
	// Status answers with a bare status code (403 for F, 410 for G).
	Status int
	// ContentType overrides the response's content type (T=<type>).
	ContentType string
}

// ParseRule parses a rule in connect-modrewrite syntax. Supported flags are L, NC, R, R=<code>,
// F, G and T=<type>. A replacement of "-" leaves the path untouched.
func ParseRule(line string) (Rule, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		return Rule{}, eris.Errorf("invalid rewrite rule %q, expected \"<regexp> <replacement> [flags]\"", line)
	}

	rule := Rule{Replacement: fields[1]}
	expr := fields[0]
	if strings.HasPrefix(expr, "!") {
		rule.Inverted = true
		expr = expr[1:]
	}

	caseless := false
	if len(fields) == 3 {
		flags := fields[2]
		if !strings.HasPrefix(flags, "[") || !strings.HasSuffix(flags, "]") {
			return Rule{}, eris.Errorf("invalid flags %s in rewrite rule %q", flags, line)
		}

		for _, flag := range strings.Split(flags[1:len(flags)-1], ",") {
			name, value, _ := strings.Cut(strings.TrimSpace(flag), "=")
			switch strings.ToUpper(name) {
			case "L":
				rule.Last = true
			case "NC":
				caseless = true
			case "R":
				rule.Redirect = http.StatusFound
				if value != "" {
					code, err := strconv.Atoi(value)
					if err != nil || code < 300 || code > 399 {
						return Rule{}, eris.Errorf("invalid redirect code %s in rewrite rule %q", value, line)
					}
					rule.Redirect = code
				}
			case "F":
				rule.Status = http.StatusForbidden
			case "G":
				rule.Status = http.StatusGone
			case "T":
				rule.ContentType = value
			default:
				return Rule{}, eris.Errorf("unknown flag %s in rewrite rule %q", name, line)
			}
		}
	}

	if caseless {
		expr = "(?i)" + expr
	}

	var err error
	rule.Pattern, err = regexp.Compile(expr)
	if err != nil {
		return Rule{}, eris.Wrapf(err, "invalid pattern in rewrite rule %q", line)
	}

	return rule, nil
}

// ParseRules parses each line with ParseRule.
func ParseRules(lines []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(lines))
	for _, line := range lines {
		rule, err := ParseRule(line)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (rule Rule) matches(path string) bool {
	return rule.Pattern.MatchString(path) != rule.Inverted
}

func (rule Rule) apply(path string) string {
	if rule.Replacement == "-" || rule.Inverted {
		return path
	}
	return rule.Pattern.ReplaceAllString(path, rule.Replacement)
}

// makeRewriteMiddleware applies rules in order to the request path before passing it on.
func makeRewriteMiddleware(rules []Rule, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		contentType := ""

		for _, rule := range rules {
			if !rule.matches(path) {
				continue
			}

			if rule.Status != 0 {
				http.Error(rw, http.StatusText(rule.Status), rule.Status)
				return
			}

			target := rule.apply(path)
			if rule.Redirect != 0 {
				if r.URL.RawQuery != "" && !strings.Contains(target, "?") {
					target += "?" + r.URL.RawQuery
				}
				http.Redirect(rw, r, target, rule.Redirect)
				return
			}

			if target != path {
				Log(r.Context()).Debug().Msgf("rewrote %s to %s", path, target)
			}
			path = target
			if rule.ContentType != "" {
				contentType = rule.ContentType
			}

			if rule.Last {
				break
			}
		}

		if path != r.URL.Path {
			r = r.Clone(r.Context())
			if before, query, found := strings.Cut(path, "?"); found {
				path = before
				r.URL.RawQuery = query
			}
			r.URL.Path = path
			r.URL.RawPath = ""
		}
		if contentType != "" {
			rw.Header().Set("Content-Type", contentType)
		}

		next.ServeHTTP(rw, r)
	})
}
