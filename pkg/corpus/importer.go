// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package corpus

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"gopkg.in/yaml.v3"

	"github.com/jllopis/noterag/pkg/errors"
)

// Seed is the YAML layout accepted by LoadSeed.
//
//	documents:
//	  - id: sky
//	    owner: user-1
//	    title: Sky
//	    text: The sky is blue.
type Seed struct {
	Documents []SeedDocument `yaml:"documents"`
}

// SeedDocument describes one document. Text is converted to a block tree
// unless Content already holds one.
type SeedDocument struct {
	ID       string `yaml:"id"`
	Owner    string `yaml:"owner"`
	Title    string `yaml:"title"`
	Parent   string `yaml:"parent"`
	Text     string `yaml:"text"`
	Content  string `yaml:"content"`
	Archived bool   `yaml:"archived"`
}

// ParseSeed decodes a seed file.
func ParseSeed(r io.Reader) ([]Document, error) {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil && err != io.EOF {
		return nil, errors.New(errors.CodeInvalidInput, "decode seed", err)
	}
	docs := make([]Document, 0, len(seed.Documents))
	for i, sd := range seed.Documents {
		if sd.Owner == "" {
			return nil, errors.New(errors.CodeInvalidInput, "seed document has no owner", nil).WithContext("index", i)
		}
		content := sd.Content
		if content == "" && sd.Text != "" {
			content = BlocksFromText(sd.Text)
		}
		docs = append(docs, Document{
			ID:       sd.ID,
			OwnerID:  sd.Owner,
			Title:    sd.Title,
			Content:  content,
			ParentID: sd.Parent,
			Archived: sd.Archived,
		})
	}
	return docs, nil
}

// LoadSeed reads the seed file at path and puts every document into store.
func LoadSeed(ctx context.Context, store Store, path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "open seed file", err).WithContext("path", path)
	}
	defer f.Close()

	docs, err := ParseSeed(f)
	if err != nil {
		return nil, err
	}
	return Import(ctx, store, docs)
}

// Import puts docs into store in order and returns them as stored. A
// document whose id already holds the same owner, title, content, parent
// and archive flag is skipped, so re-importing a file fires no change
// notifications for it.
func Import(ctx context.Context, store Store, docs []Document) ([]Document, error) {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d.ID != "" {
			if prev, err := store.Get(ctx, d.ID); err == nil && sameDocument(prev, d) {
				out = append(out, prev)
				continue
			}
		}
		stored, err := store.Put(ctx, d)
		if err != nil {
			return out, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func sameDocument(a, b Document) bool {
	return a.OwnerID == b.OwnerID &&
		a.Title == b.Title &&
		a.Content == b.Content &&
		a.ParentID == b.ParentID &&
		a.Archived == b.Archived
}

// FromPDF turns the plain text of the PDF at path into a document owned
// by ownerID. The title is the file name without extension.
func FromPDF(path, ownerID string) (Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Document{}, errors.New(errors.CodeInvalidInput, "open pdf", err).WithContext("path", path)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return Document{}, errors.New(errors.CodeInvalidInput, "extract pdf text", err).WithContext("path", path)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return Document{}, errors.New(errors.CodeInvalidInput, "read pdf text", err).WithContext("path", path)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return Document{}, errors.New(errors.CodeInvalidInput, "pdf has no extractable text", nil).WithContext("path", path)
	}
	return Document{
		OwnerID: ownerID,
		Title:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Content: BlocksFromText(text),
	}, nil
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

type block struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Props    map[string]any `json:"props"`
	Content  []inline       `json:"content"`
	Children []block        `json:"children"`
}

type inline struct {
	Type   string         `json:"type"`
	Text   string         `json:"text"`
	Styles map[string]any `json:"styles"`
}

// BlocksFromText builds a block tree with one paragraph per blank-line
// separated run of text. Paragraphs after the first keep a leading "\n\n"
// so extracted text still shows the breaks.
func BlocksFromText(text string) string {
	blocks := []block{}
	for _, para := range paragraphBreak.Split(strings.TrimSpace(text), -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(blocks) > 0 {
			para = "\n\n" + para
		}
		blocks = append(blocks, block{
			ID:       uuid.NewString(),
			Type:     "paragraph",
			Props:    map[string]any{},
			Content:  []inline{{Type: "text", Text: para, Styles: map[string]any{}}},
			Children: []block{},
		})
	}
	out, _ := json.Marshal(blocks)
	return string(out)
}
