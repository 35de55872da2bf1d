package llm

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"vintagevision/internal/domain"
)

// CorrectionExample is a past expert correction shown to the model so it
// does not repeat the same mistake.
type CorrectionExample struct {
	ItemName       string
	ItemCategory   domain.Domain
	Field          string
	OriginalValue  string
	CorrectedValue string
	Explanation    string
}

func (c CorrectionExample) text() string {
	return strings.Join([]string{c.ItemName, string(c.ItemCategory), c.Field, c.OriginalValue, c.CorrectedValue, c.Explanation}, " ")
}

type termVec = map[int]float64

// exampleIndex ranks correction examples by TF-IDF cosine similarity.
type exampleIndex struct {
	terms    map[string]int
	idf      []float64
	vecs     []termVec
	examples []CorrectionExample
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func newExampleIndex(examples []CorrectionExample) *exampleIndex {
	idx := &exampleIndex{terms: map[string]int{}, examples: examples}
	if len(examples) == 0 {
		return idx
	}

	counts := make([]map[int]int, len(examples))
	for i, ex := range examples {
		counts[i] = map[int]int{}
		for _, tok := range tokenize(ex.text()) {
			id, ok := idx.terms[tok]
			if !ok {
				id = len(idx.terms)
				idx.terms[tok] = id
			}
			counts[i][id]++
		}
	}

	df := make([]int, len(idx.terms))
	for _, c := range counts {
		for id := range c {
			df[id]++
		}
	}
	n := float64(len(examples))
	idx.idf = make([]float64, len(df))
	for id, d := range df {
		idx.idf[id] = math.Log(n/float64(d)) + 1
	}

	idx.vecs = make([]termVec, len(examples))
	for i, c := range counts {
		v := make(termVec, len(c))
		for id, tf := range c {
			v[id] = float64(tf) * idx.idf[id]
		}
		idx.vecs[i] = v
	}
	return idx
}

func (idx *exampleIndex) vectorize(query string) termVec {
	v := termVec{}
	for _, tok := range tokenize(query) {
		if id, ok := idx.terms[tok]; ok {
			v[id] += idx.idf[id]
		}
	}
	return v
}

// topK returns up to k examples most similar to query, best first. Ties
// keep input order.
func (idx *exampleIndex) topK(query string, k int) []CorrectionExample {
	if k <= 0 || len(idx.examples) == 0 {
		return nil
	}
	q := idx.vectorize(query)
	if len(q) == 0 {
		return nil
	}
	type hit struct {
		i     int
		score float64
	}
	var hits []hit
	for i, v := range idx.vecs {
		if s := cosine(q, v); s > 0 {
			hits = append(hits, hit{i, s})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]CorrectionExample, len(hits))
	for i, h := range hits {
		out[i] = idx.examples[h.i]
	}
	return out
}

func cosine(a, b termVec) float64 {
	var dot, na, nb float64
	for id, va := range a {
		dot += va * b[id]
		na += va * va
	}
	for _, vb := range b {
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// selectExamples picks the examples most relevant to hint. Without a usable
// hint the newest k examples are used as given.
func selectExamples(examples []CorrectionExample, hint string, k int) []CorrectionExample {
	if k <= 0 || len(examples) == 0 {
		return nil
	}
	if picked := newExampleIndex(examples).topK(hint, k); len(picked) > 0 {
		return picked
	}
	if len(examples) > k {
		return examples[:k]
	}
	return examples
}

func truncateRunes(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if max <= 0 || len(r) <= max {
		return string(r)
	}
	return string(r[:max-1]) + "…"
}
