package retrieval

import (
	"container/heap"
	"math"
	"strings"
	"unicode"
)

// BM25 ranking parameters. Standard values; not worth configuring.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Lexical is an in-memory term-frequency (BM25) retriever over the full
// ingested corpus. It is built once from a VectorStore export and is
// immutable afterwards; a corpus refresh builds a new instance.
type Lexical struct {
	docs   []lexicalDoc
	df     map[string]int // document frequency per term
	avgLen float64
}

type lexicalDoc struct {
	record Record
	terms  map[string]int // term frequency
	length int
}

// NewLexical builds a BM25 index over the given records. Returns nil for
// an empty corpus: callers treat a nil retriever as "lexical stage absent"
// and fall back to semantic-only fusion.
func NewLexical(records []Record) *Lexical {
	if len(records) == 0 {
		return nil
	}

	l := &Lexical{df: make(map[string]int)}
	var totalLen int
	for _, r := range records {
		tokens := tokenize(r.Heading + " " + r.Text)
		doc := lexicalDoc{record: r, terms: make(map[string]int, len(tokens)), length: len(tokens)}
		for _, t := range tokens {
			doc.terms[t]++
		}
		for t := range doc.terms {
			l.df[t]++
		}
		totalLen += doc.length
		l.docs = append(l.docs, doc)
	}
	l.avgLen = float64(totalLen) / float64(len(l.docs))
	return l
}

// Size returns the number of indexed documents.
func (l *Lexical) Size() int {
	if l == nil {
		return 0
	}
	return len(l.docs)
}

// Search returns the top-K records by BM25 relevance to the query.
// Zero-scoring documents are never returned.
func (l *Lexical) Search(query string, topK int) []ScoredRecord {
	if l == nil || topK <= 0 {
		return nil
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	n := float64(len(l.docs))
	h := &idScoreHeap{}
	heap.Init(h)
	byIndex := make(map[string]int, topK)

	for i, doc := range l.docs {
		var score float64
		for _, t := range queryTerms {
			tf := doc.terms[t]
			if tf == 0 {
				continue
			}
			df := float64(l.df[t])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			num := float64(tf) * (bm25K1 + 1)
			den := float64(tf) + bm25K1*(1-bm25B+bm25B*float64(doc.length)/l.avgLen)
			score += idf * num / den
		}
		if score <= 0 {
			continue
		}

		s := float32(score)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: doc.record.ID, Score: s})
			byIndex[doc.record.ID] = i
		} else if s > (*h)[0].Score {
			delete(byIndex, (*h)[0].ID)
			(*h)[0] = idScore{ID: doc.record.ID, Score: s}
			heap.Fix(h, 0)
			byIndex[doc.record.ID] = i
		}
	}

	results := make([]ScoredRecord, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		results[i] = ScoredRecord{Record: l.docs[byIndex[item.ID]].record, Score: item.Score}
	}
	return results
}

// tokenize lowercases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
