// Package classifier decides whether a page URL is a media page the backend can resolve.
//
// The Detector and the Panel both call IsVideoURL; there is only one rule set.
package classifier

import "strings"

// Site identifies a supported media site.
type Site string

const (
	SiteYouTube   Site = "youtube"
	SiteInstagram Site = "instagram"
)

// rule is a substring that marks a content page on a site.
type rule struct {
	site    Site
	pattern string
}

var rules = []rule{
	{site: SiteYouTube, pattern: "youtube.com/watch"},
	{site: SiteInstagram, pattern: "instagram.com/p/"},
	{site: SiteInstagram, pattern: "instagram.com/reel/"},
	{site: SiteInstagram, pattern: "instagram.com/tv/"},
}

// IsVideoURL reports whether url contains one of the supported content-page patterns.
func IsVideoURL(url string) bool {
	_, ok := Match(url)
	return ok
}

// Match returns the site whose pattern url matches.
func Match(url string) (Site, bool) {
	for _, r := range rules {
		if strings.Contains(url, r.pattern) {
			return r.site, true
		}
	}
	return "", false
}

// Patterns returns a copy of the substrings the classifier matches against.
func Patterns() []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.pattern
	}
	return out
}
