// Package search ranks conversation messages against a multi-term query.
package search

import (
	"slices"
	"strings"

	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
)

// Rank returns the messages matching at least one whole-word query term,
// ordered by the number of distinct terms matched. Ties keep input order.
// Callers pass already visible messages; empty-content messages never match
// and attachments are stripped from the result.
func Rank(msgs []model.Message, query string) ([]model.Message, error) {
	terms := Terms(query)
	if len(terms) == 0 {
		return nil, errs.ErrEmptyQuery
	}

	type hit struct {
		m     model.Message
		score int
	}
	var hits []hit
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if s := score(terms, m.Content); s > 0 {
			hits = append(hits, hit{m: m.WithoutAttachment(), score: s})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return b.score - a.score })

	out := make([]model.Message, len(hits))
	for i, h := range hits {
		out[i] = h.m
	}
	return out, nil
}

// Terms splits q on whitespace and drops repeated terms.
func Terms(q string) []string {
	fields := strings.Fields(q)
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func score(terms []string, content string) int {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(content) {
		words[w] = struct{}{}
	}
	n := 0
	for _, t := range terms {
		if _, ok := words[t]; ok {
			n++
		}
	}
	return n
}
