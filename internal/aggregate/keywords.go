package aggregate

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TopN is the size of the frequency tables stored on an aggregate.
const TopN = 10

// minTokenRunes drops short tokens such as articles and initials.
const minTokenRunes = 3

var stopwords = func() map[string]bool {
	words := strings.Fields(`
		que com não uma para por mais mas como dos das nos nas pelo pela pelos pelas
		ele ela eles elas seu sua seus suas meu minha meus minhas nosso nossa isso isto
		esse essa este esta aquele aquela aqui ali muito muita muitos muitas pouco
		está estão estou estava foi ser ter tem tinha são era há sobre entre até
		também já ainda quando onde porque pois então sem sim num numa dia hoje
		the and for are but not you all any can had her was one our out has have
		his how its may new now old see two way who did get him let say she too use
		with that this from they will would there their what about which when been
		were into more some than them then these very just also user usuário
	`)
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()

// tokenize lower-cases text and splits it on anything that is not a letter
// or digit, dropping stopwords and short tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenRunes || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// normalizeTerm canonicalises a trigger phrase for counting.
func normalizeTerm(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// counter is a frequency table that remembers first-seen order.
type counter struct {
	counts map[string]int
	first  map[string]int
	seq    int
}

func newCounter() *counter {
	return &counter{counts: map[string]int{}, first: map[string]int{}}
}

func (c *counter) add(term string) {
	if term == "" {
		return
	}
	if _, ok := c.first[term]; !ok {
		c.first[term] = c.seq
		c.seq++
	}
	c.counts[term]++
}

// top returns up to n terms ranked by count, highest first. Terms with the
// same count keep the order in which they were first seen.
func (c *counter) top(n int) []TermCount {
	terms := make([]string, 0, len(c.counts))
	for t := range c.counts {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		ci, cj := c.counts[terms[i]], c.counts[terms[j]]
		if ci != cj {
			return ci > cj
		}
		return c.first[terms[i]] < c.first[terms[j]]
	})
	if n > 0 && len(terms) > n {
		terms = terms[:n]
	}
	out := make([]TermCount, len(terms))
	for i, t := range terms {
		out[i] = TermCount{Term: t, Count: c.counts[t]}
	}
	return out
}
