/*
Copyright 2024 Boostgram Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package linknorm reconciles the weakly-structured identifier schemes a
// target arrives with: bare shortcodes, full post URLs, reel URLs and
// profile URLs. Everything downstream compares targets through the canonical
// forms produced here.
package linknorm

import (
	"regexp"
	"strings"
)

var (
	postPattern = regexp.MustCompile(`/(p|reel|reels|tv)/([A-Za-z0-9_-]+)`)
	codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{5,40}$`)
)

// ExtractCode pulls the shortcode out of a link. It recognizes /p/{code},
// /reel/{code}, /reels/{code} and /tv/{code} URL shapes. A bare token with
// no slashes and a plausible shortcode length is treated as the code itself.
// Returns "" when nothing code-like is present.
func ExtractCode(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}

	if m := postPattern.FindStringSubmatch(link); m != nil {
		return m[2]
	}

	if !strings.Contains(link, "/") && !strings.Contains(link, " ") && !strings.Contains(link, ".") {
		if codePattern.MatchString(link) {
			return link
		}
	}
	return ""
}

// Normalize produces the canonical comparison form of a link:
// https://instagram.com/{p|reel}/{code} for anything a code can be extracted
// from, otherwise the input stripped of protocol, www, query string and
// trailing slash. Reel links keep the reel shape so the provider-facing form
// survives the round trip.
func Normalize(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}

	if code := ExtractCode(link); code != "" {
		if isReel(link) {
			return ReelLink(code)
		}
		return PostLink(code)
	}
	return stripNoise(link)
}

// PostLink is the canonical provider-facing URL for a post shortcode.
func PostLink(code string) string {
	return "https://instagram.com/p/" + code
}

// ReelLink is the canonical provider-facing URL for a reel shortcode.
func ReelLink(code string) string {
	return "https://instagram.com/reel/" + code
}

// ProfileLink is the canonical provider-facing URL for a username, used by
// follower services.
func ProfileLink(username string) string {
	return "https://instagram.com/" + strings.TrimPrefix(strings.TrimSpace(username), "@")
}

// IsProfileLink reports whether a link points at a profile rather than a
// specific post: an instagram URL whose first path segment is not one of the
// post shapes. A profile link is never silently usable as a post target; the
// caller must fall back to auxiliary post records.
func IsProfileLink(link string) bool {
	link = stripNoise(link)
	if link == "" {
		return false
	}
	if !strings.Contains(link, "instagram.com/") {
		return false
	}
	if postPattern.MatchString(link) {
		return false
	}
	path := strings.TrimPrefix(link, "instagram.com/")
	if path == "" {
		return false
	}
	segment := strings.SplitN(path, "/", 2)[0]
	return segment != ""
}

func isReel(link string) bool {
	m := postPattern.FindStringSubmatch(link)
	return m != nil && (m[1] == "reel" || m[1] == "reels")
}

// stripNoise removes the parts of a URL that never matter for identity:
// protocol, www prefix, query string, fragment and trailing slashes.
func stripNoise(link string) string {
	link = strings.TrimSpace(link)
	link = strings.TrimPrefix(link, "https://")
	link = strings.TrimPrefix(link, "http://")
	link = strings.TrimPrefix(link, "www.")
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	return strings.TrimRight(link, "/")
}
