// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package extract pulls plain text out of block-tree documents.
//
// A block tree is JSON: arrays of nodes, where a node may carry a "content"
// array of inline children (leaves are {"type": "text", "text": "..."})
// and a "children" array of nested blocks.
package extract

import (
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jllopis/noterag/pkg/corpus"
)

// Text returns every leaf text of content in depth-first pre-order,
// concatenated without separators. Content that is not valid JSON yields "".
func Text(content string) string {
	if !gjson.Valid(content) {
		slog.Debug("extract: content is not valid JSON", slog.Int("length", len(content)))
		return ""
	}
	var b strings.Builder
	walk(gjson.Parse(content), &b)
	return b.String()
}

// Document extracts the text of doc. It reports false when the document
// was never authored, so the caller skips it without indexing anything.
func Document(doc corpus.Document) (string, bool) {
	if doc.Content == "" {
		return "", false
	}
	return Text(doc.Content), true
}

func walk(node gjson.Result, b *strings.Builder) {
	if node.IsArray() {
		node.ForEach(func(_, item gjson.Result) bool {
			walk(item, b)
			return true
		})
		return
	}
	if !node.IsObject() {
		return
	}

	if content := node.Get("content"); content.IsArray() {
		content.ForEach(func(_, child gjson.Result) bool {
			if isTextLeaf(child) {
				b.WriteString(child.Get("text").String())
			} else {
				walk(child, b)
			}
			return true
		})
	}
	if children := node.Get("children"); children.IsArray() {
		children.ForEach(func(_, child gjson.Result) bool {
			walk(child, b)
			return true
		})
	}
}

func isTextLeaf(node gjson.Result) bool {
	if !node.IsObject() || node.Get("type").String() != "text" {
		return false
	}
	text := node.Get("text")
	return text.Type == gjson.String && text.Str != ""
}
