package search

import (
	"errors"
	"testing"

	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
)

func contents(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRank_OrderByMatchesStable(t *testing.T) {
	t.Parallel()

	msgs := []model.Message{
		{Content: "hello world"},
		{Content: "hello there"},
		{Content: "world peace"},
		{Content: "nothing here"},
	}
	got, err := Rank(msgs, "hello world")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"hello world", "hello there", "world peace"}
	if !equal(contents(got), want) {
		t.Fatalf("got %v, want %v", contents(got), want)
	}
}

func TestRank_WholeWordsOnly(t *testing.T) {
	t.Parallel()

	msgs := []model.Message{{Content: "helloworld"}, {Content: "shell"}, {Content: "Hello"}}
	got, _ := Rank(msgs, "hello")
	if len(got) != 0 {
		t.Fatalf("substring or case-folded match leaked: %v", contents(got))
	}
}

func TestRank_StripsAttachmentsAndSkipsEmpty(t *testing.T) {
	t.Parallel()

	msgs := []model.Message{
		{Content: "", Attachment: &model.Attachment{MimeType: "image/png"}},
		{Content: "cat pic", Attachment: &model.Attachment{Data: []byte{1}, MimeType: "image/png"}},
	}
	got, _ := Rank(msgs, "cat")
	if len(got) != 1 || got[0].Attachment != nil {
		t.Fatalf("got %+v", got)
	}
	if msgs[1].Attachment == nil {
		t.Fatalf("input mutated")
	}
}

func TestRank_DuplicateTermsCountOnce(t *testing.T) {
	t.Parallel()

	msgs := []model.Message{{Content: "a b"}, {Content: "a a a"}}
	got, _ := Rank(msgs, "a a b")
	if !equal(contents(got), []string{"a b", "a a a"}) {
		t.Fatalf("got %v", contents(got))
	}
}

func TestRank_EmptyQuery(t *testing.T) {
	t.Parallel()

	for _, q := range []string{"", "   ", "\t\n"} {
		if _, err := Rank(nil, q); !errors.Is(err, errs.ErrEmptyQuery) {
			t.Fatalf("query %q: %v", q, err)
		}
	}
}
