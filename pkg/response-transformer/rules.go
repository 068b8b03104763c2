// Package responsetransformer rewrites origin response headers before the
// response is stored, e.g. to give a Cache-Control header to an origin that
// does not send one.
package responsetransformer

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

type Rules []Rule

// Rule matches GET requests by path and query. The first matching rule is applied.
type Rule struct {
	Prefix string            `yaml:"prefix"`
	Path   string            `yaml:"path"`
	Query  map[string]string `yaml:"query"`
	// Cache-Control to set if the origin sent none.
	Default string `yaml:"default"`
	// Cache-Control to set regardless of what the origin sent.
	Override string            `yaml:"override"`
	Headers  map[string]string `yaml:"headers"`
	Remove   []string          `yaml:"remove"`
}

// Apply rewrites the headers of successful responses according to the first
// rule matching res.Request. It has the signature of a response modifier.
func (r Rules) Apply(res *http.Response) error {
	if res.StatusCode < 200 || res.StatusCode > 299 || res.Request == nil {
		return nil
	}
	if rule, ok := r.find(res.Request); ok {
		rule.apply(res.Header)
	}
	return nil
}

func (rule Rule) apply(header http.Header) {
	if rule.Override != "" {
		log.Trace().Str("cacheControl", rule.Override).Msg("Overriding Cache-Control header")
		header.Set("Cache-Control", rule.Override)
	} else if rule.Default != "" && header.Get("Cache-Control") == "" {
		log.Trace().Str("cacheControl", rule.Default).Msg("Applying default Cache-Control header")
		header.Set("Cache-Control", rule.Default)
	}
	for name, value := range rule.Headers {
		header.Set(name, value)
	}
	for _, name := range rule.Remove {
		header.Del(name)
	}
}

func (r Rules) find(req *http.Request) (Rule, bool) {
	if req.Method != http.MethodGet {
		return Rule{}, false
	}
	for _, rule := range r {
		if rule.matches(req) {
			return rule, true
		}
	}
	return Rule{}, false
}

func (rule Rule) matches(req *http.Request) bool {
	if rule.Path != "" && rule.Path != req.URL.Path {
		return false
	}
	if rule.Prefix != "" && !strings.HasPrefix(req.URL.Path, rule.Prefix) {
		return false
	}
	if len(rule.Query) > 0 {
		qry := req.URL.Query()
		for name, value := range rule.Query {
			// empty value means the parameter just has to be present
			if value == "" && !qry.Has(name) {
				return false
			} else if value != "" && qry.Get(name) != value {
				return false
			}
		}
	}
	return true
}
