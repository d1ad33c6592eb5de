// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"regexp"
	"strings"
)

// SafeLinkAttrs are the attributes every outbound HTML anchor carries.
const SafeLinkAttrs = `target="_blank" rel="noopener noreferrer"`

var (
	// [text](url){:target="_blank"} and variants without the colon.
	mdLinkAttrList = regexp.MustCompile(`(\]\([^)\n]*\))\{:?[^}\n]*\btarget\s*=[^}\n]*\}`)

	// Opening anchor tags.
	htmlAnchor = regexp.MustCompile(`(?i)<a\s[^>]*>`)

	// target= and rel= attributes inside a tag.
	anchorAttr = regexp.MustCompile(`(?i)\s+(?:target|rel)\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+)`)
)

// SanitizeLinks removes author-supplied link targets and forces safe ones.
//
// Markdown attribute lists such as {:target="_blank"} are dropped since
// renderers open links on their own terms. Inline HTML anchors have their
// target and rel attributes replaced with SafeLinkAttrs. The function is
// idempotent, so it can run over the whole accumulated text after every
// streamed fragment.
func SanitizeLinks(text string) string {
	if !strings.Contains(text, "target") && !strings.Contains(strings.ToLower(text), "<a") {
		return text
	}
	text = mdLinkAttrList.ReplaceAllString(text, "$1")
	return htmlAnchor.ReplaceAllStringFunc(text, func(tag string) string {
		tag = anchorAttr.ReplaceAllString(tag, "")
		closing := ">"
		body := strings.TrimSuffix(tag, ">")
		if strings.HasSuffix(body, "/") {
			closing = "/>"
			body = strings.TrimSuffix(body, "/")
		}
		return strings.TrimRight(body, " \t") + " " + SafeLinkAttrs + closing
	})
}
