package model

import (
	"github.com/boostgram/boostgram/internal/linknorm"
)

// Target is one post, reel or profile that engagement is delivered to. The
// three identification channels (internal id, shortcode, link) come from
// different places in the checkout flow and are not guaranteed consistent
// with each other.
type Target struct {
	ID       string `json:"id,omitempty"`
	Code     string `json:"code,omitempty"`
	Link     string `json:"link,omitempty"`
	Quantity int64  `json:"quantity,omitempty"`
}

// CanonicalKey is the single normalized identity used by every duplicate
// check, in-memory and store-level. Preference order: normalized link when a
// shortcode is extractable, then the explicit code, then the raw link.
func (t Target) CanonicalKey() string {
	if code := linknorm.ExtractCode(t.Link); code != "" {
		return linknorm.Normalize(t.Link)
	}
	if t.Code != "" {
		return t.Code
	}
	return t.Link
}

// ResolvedCode returns the shortcode for the target, extracting it from the
// link when the explicit code is missing.
func (t Target) ResolvedCode() string {
	if t.Code != "" {
		return t.Code
	}
	return linknorm.ExtractCode(t.Link)
}

// Empty reports whether the target carries no usable identifier at all.
func (t Target) Empty() bool {
	return t.ID == "" && t.Code == "" && t.Link == ""
}
