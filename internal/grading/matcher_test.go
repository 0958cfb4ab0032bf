package grading

import (
	"math"
	"testing"

	"github.com/adaptiq/adaptiq-engine/internal/quiz"
)

func TestMatchMultipleChoice(t *testing.T) {
	cases := []struct {
		name     string
		response interface{}
		key      []string
		exact    bool
	}{
		{"single correct", "b", []string{"b"}, true},
		{"case insensitive", "B", []string{"b"}, true},
		{"single wrong", "a", []string{"b"}, false},
		{"multi select all", []interface{}{"a", "c"}, []string{"c", "a"}, true},
		{"multi select missing one", []interface{}{"a"}, []string{"c", "a"}, false},
		{"multi select extra", []interface{}{"a", "b", "c"}, []string{"c", "a"}, false},
		{"nil response", nil, []string{"b"}, false},
		{"number response", 42, []string{"b"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Match(c.response, c.key, quiz.TypeMultipleChoice)
			if got.Exact != c.exact {
				t.Errorf("Exact = %v, want %v", got.Exact, c.exact)
			}
		})
	}
}

func TestMatchTrueFalse(t *testing.T) {
	if !Match("True", []string{"true"}, quiz.TypeTrueFalse).Exact {
		t.Error("casefolded true/false should match")
	}
	if Match("false", []string{"true"}, quiz.TypeTrueFalse).Exact {
		t.Error("wrong boolean matched")
	}
}

func TestMatchShortAnswer(t *testing.T) {
	key := []string{"Eiffel Tower", "The Eiffel Tower"}

	got := Match("the eiffel tower", key, quiz.TypeShortAnswer)
	if !got.Exact || got.Similarity != 1 {
		t.Fatalf("exact variant: got %+v", got)
	}

	got = Match("Eifel Tower", key, quiz.TypeShortAnswer)
	if got.Exact {
		t.Fatal("typo should not be exact")
	}
	want := 1 - 1.0/12
	if math.Abs(got.Similarity-want) > 1e-9 {
		t.Fatalf("typo similarity = %v, want %v", got.Similarity, want)
	}

	got = Match("completely unrelated", key, quiz.TypeShortAnswer)
	if got.Similarity >= 0.5 {
		t.Fatalf("unrelated answer too similar: %v", got.Similarity)
	}
}

func TestMatchShortAnswerTakesBestReference(t *testing.T) {
	key := []string{"mitochondrion", "mitochondria"}
	got := Match("mitochondria", key, quiz.TypeShortAnswer)
	if !got.Exact {
		t.Fatalf("best reference should yield exact, got %+v", got)
	}
}

func TestMatchDragDrop(t *testing.T) {
	key := []string{"alpha", "beta", "gamma"}
	if !Match([]interface{}{"Gamma", "alpha", "beta"}, key, quiz.TypeDragDrop).Exact {
		t.Error("order-insensitive set should match")
	}
	if Match([]interface{}{"alpha", "beta"}, key, quiz.TypeDragDrop).Exact {
		t.Error("partial set matched")
	}
	if Match("alpha", key, quiz.TypeDragDrop).Exact {
		t.Error("scalar against set matched")
	}
}

func TestMatchCodeCompletion(t *testing.T) {
	key := []string{"return x + y"}
	if !Match("return  x + y", key, quiz.TypeCodeCompletion).Exact {
		t.Error("whitespace-normalized code should match")
	}
	if Match("return x - y", key, quiz.TypeCodeCompletion).Exact {
		t.Error("near-miss code matched; graded similarity is short_answer only")
	}
}

func TestMatchEmptyKey(t *testing.T) {
	got := Match("anything", nil, quiz.TypeShortAnswer)
	if got.Exact || got.Similarity != 0 {
		t.Errorf("empty key should score zero, got %+v", got)
	}
}
