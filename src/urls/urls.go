// Package urls builds the public permalinks of the site, and holds the regexes
// the router matches them with. Every Build function has a Regex next to it.
package urls

import (
	"net/url"
	"strings"

	"git.cdm.community/cdm/cdm/src/config"
)

var baseUrl string

func init() {
	SetGlobalBaseUrl(config.Config.BaseUrl)
}

// Used by tests and by the website at startup, after the config is final.
func SetGlobalBaseUrl(fullBaseUrl string) {
	baseUrl = strings.TrimSuffix(fullBaseUrl, "/")
}

type Q struct {
	Name  string
	Value string
}

func Url(path string, query []Q) string {
	return UrlWithFragment(path, query, "")
}

func UrlWithFragment(path string, query []Q, fragment string) string {
	result := baseUrl + "/" + trim(path)
	if q := encodeQuery(query); q != "" {
		result += "?" + q
	}
	if fragment != "" {
		result += "#" + fragment
	}
	return result
}

func trim(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}

func encodeQuery(query []Q) string {
	result := url.Values{}
	for _, q := range query {
		result.Set(q.Name, q.Value)
	}
	return result.Encode()
}
