package domain

import (
	"strconv"
	"strings"
)

type ChunkType string

const (
	ChunkTypeBody        ChunkType = "body"
	ChunkTypeElucidation ChunkType = "elucidation"
)

// ParseChunkType maps stored payload values onto a ChunkType; unknown values are body text.
func ParseChunkType(v string) ChunkType {
	if strings.EqualFold(strings.TrimSpace(v), string(ChunkTypeElucidation)) {
		return ChunkTypeElucidation
	}
	return ChunkTypeBody
}

// Chunk is one retrievable unit of statutory text.
type Chunk struct {
	Source          string    `json:"source"`
	ArticleNumber   *int      `json:"article_number"`
	ParagraphNumber *int      `json:"paragraph_number"`
	ChunkType       ChunkType `json:"chunk_type"`
	Text            string    `json:"text"`
}

// ChunkKey identifies a chunk regardless of which query variant retrieved it.
type ChunkKey struct {
	Source          string
	ArticleNumber   int
	HasArticle      bool
	ParagraphNumber int
	HasParagraph    bool
	ChunkType       ChunkType
}

func (c Chunk) Key() ChunkKey {
	key := ChunkKey{Source: c.Source, ChunkType: c.ChunkType}
	if key.ChunkType == "" {
		key.ChunkType = ChunkTypeBody
	}
	if c.ArticleNumber != nil {
		key.ArticleNumber = *c.ArticleNumber
		key.HasArticle = true
	}
	if c.ParagraphNumber != nil {
		key.ParagraphNumber = *c.ParagraphNumber
		key.HasParagraph = true
	}
	return key
}

// String renders the key as "source|article|paragraph|type", with "-" for absent numbers.
// The zero-padded numbers keep lexical order equal to numeric order.
func (k ChunkKey) String() string {
	var b strings.Builder
	b.WriteString(k.Source)
	b.WriteByte('|')
	b.WriteString(optionalNumber(k.ArticleNumber, k.HasArticle))
	b.WriteByte('|')
	b.WriteString(optionalNumber(k.ParagraphNumber, k.HasParagraph))
	b.WriteByte('|')
	b.WriteString(string(k.ChunkType))
	return b.String()
}

func optionalNumber(n int, ok bool) string {
	if !ok {
		return "-"
	}
	s := strconv.Itoa(n)
	if len(s) < 6 {
		s = strings.Repeat("0", 6-len(s)) + s
	}
	return s
}

// Reference formats the citation used in prompts, e.g. "Pasal 106 ayat (4)".
func (c Chunk) Reference() string {
	article := "?"
	if c.ArticleNumber != nil {
		article = strconv.Itoa(*c.ArticleNumber)
	}
	if c.ParagraphNumber != nil {
		return "Pasal " + article + " ayat (" + strconv.Itoa(*c.ParagraphNumber) + ")"
	}
	return "Pasal " + article
}

func IntPtr(v int) *int {
	return &v
}
