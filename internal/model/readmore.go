// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "github.com/jeranaias/ragchat/internal/stream"

// ReadMore groups citation links by the message id they belong to.
// It is not synchronized; Transcript guards it.
type ReadMore struct {
	order []string
	links map[string][]stream.Citation
}

// NewReadMore creates an empty collection.
func NewReadMore() *ReadMore {
	return &ReadMore{links: make(map[string][]stream.Citation)}
}

// Add appends links under id, creating the group on first use.
// A link whose URL is already recorded for id is skipped.
func (r *ReadMore) Add(id string, links ...stream.Citation) {
	existing, ok := r.links[id]
	if !ok {
		r.order = append(r.order, id)
	}
	for _, l := range links {
		if containsURL(existing, l.URL) {
			continue
		}
		existing = append(existing, l)
	}
	r.links[id] = existing
}

// Get returns a copy of the links for id.
func (r *ReadMore) Get(id string) []stream.Citation {
	links := r.links[id]
	if len(links) == 0 {
		return nil
	}
	out := make([]stream.Citation, len(links))
	copy(out, links)
	return out
}

// IDs returns the ids in insertion order.
func (r *ReadMore) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func containsURL(links []stream.Citation, url string) bool {
	if url == "" {
		return false
	}
	for _, l := range links {
		if l.URL == url {
			return true
		}
	}
	return false
}
