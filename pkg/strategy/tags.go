package strategy

import (
	"net/http"
	"sort"
	"strings"
)

// InferTags derives tags from the URL path:
// /api/services → services, /api/services/{id} → services + service-{id},
// /api/search → search, /api/user → user.
func InferTags(req *http.Request) []string {
	segments := strings.Split(strings.Trim(req.URL.Path, "/"), "/")
	if len(segments) < 2 || segments[0] != "api" {
		return nil
	}
	switch segments[1] {
	case "services":
		tags := []string{"services"}
		if len(segments) > 2 && segments[2] != "" {
			tags = append(tags, "service-"+segments[2])
		}
		return tags
	case "search":
		return []string{"search"}
	case "user":
		return []string{"user"}
	}
	return nil
}

// ParseTags splits a comma-separated tag list, dropping empty items.
func ParseTags(value string) []string {
	var tags []string
	for _, tag := range strings.Split(value, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// MergeTags returns the sorted union of the given tag lists.
func MergeTags(lists ...[]string) []string {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, tag := range list {
			set[tag] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
