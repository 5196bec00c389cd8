// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package query

import (
	"net/url"
	"sort"
	"strings"
)

// node is one level of a parsed query string: either a list of raw values
// (leaf) or named children.
type node struct {
	values   []string
	children map[string]*node
	order    []string
}

func newNode() *node {
	return &node{children: map[string]*node{}}
}

func (n *node) isLeaf() bool {
	return len(n.children) == 0
}

func (n *node) child(name string) *node {
	c, ok := n.children[name]
	if !ok {
		c = newNode()
		n.children[name] = c
		n.order = append(n.order, name)
	}
	return c
}

// last returns the final value given for a leaf.
func (n *node) last() string {
	if len(n.values) == 0 {
		return ""
	}
	return n.values[len(n.values)-1]
}

// parseParams turns flat url.Values into a tree, splitting bracketed keys
// the way qs does: "duration[gte]=5" becomes duration -> gte -> ["5"].
// Keys with a segment starting with "$" or containing "." are dropped.
func parseParams(params url.Values) *node {
	root := newNode()

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path, ok := splitKey(key)
		if !ok {
			continue
		}
		cur := root
		for _, seg := range path {
			cur = cur.child(seg)
		}
		if !cur.isLeaf() {
			continue
		}
		cur.values = append(cur.values, params[key]...)
	}
	return root
}

// splitKey splits "a[b][c]" into [a b c]. A trailing "[]" marks an explicit
// list and adds no segment.
func splitKey(key string) ([]string, bool) {
	head, rest, hasBracket := strings.Cut(key, "[")
	path := []string{head}
	if hasBracket {
		rest = "[" + rest
		for len(rest) > 0 {
			if rest[0] != '[' {
				return nil, false
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, false
			}
			if seg := rest[1:end]; seg != "" {
				path = append(path, seg)
			}
			rest = rest[end+1:]
		}
	}
	for _, seg := range path {
		if !safeSegment(seg) {
			return nil, false
		}
	}
	return path, true
}

func safeSegment(seg string) bool {
	return seg != "" && !strings.HasPrefix(seg, "$") && !strings.Contains(seg, ".")
}
