package evaluation

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func scored(id string, total *float64) *Result {
	return &Result{TrialID: id, Response: Record{TotalScore: total}}
}

func fptr(v float64) *float64 {
	return &v
}

func TestTopByScore(t *testing.T) {
	t.Parallel()

	results := Results{
		scored("NCT1", fptr(30)),
		scored("NCT2", nil),
		scored("NCT3", fptr(90)),
		scored("NCT4", fptr(60)),
	}

	top := results.TopByScore(2)

	if len(top) != 2 {
		t.Fatalf("expected 2 results, got %d", len(top))
	}

	if top[0].TrialID != "NCT3" || top[1].TrialID != "NCT4" {
		t.Fatalf("unexpected order: %s, %s", top[0].TrialID, top[1].TrialID)
	}
}

func TestTopByScoreKeepsTieOrder(t *testing.T) {
	t.Parallel()

	results := Results{
		scored("NCT1", fptr(50)),
		scored("NCT2", fptr(50)),
		scored("NCT3", fptr(50)),
	}

	top := results.TopByScore(3)

	got := []string{top[0].TrialID, top[1].TrialID, top[2].TrialID}
	want := []string{"NCT1", "NCT2", "NCT3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected stable order %v, got %v", want, got)
	}
}

func TestTopByScoreBounds(t *testing.T) {
	t.Parallel()

	results := Results{scored("NCT1", fptr(10))}

	if got := results.TopByScore(0); len(got) != 0 {
		t.Fatalf("expected empty selection, got %d", len(got))
	}

	if got := results.TopByScore(-1); len(got) != 0 {
		t.Fatalf("expected empty selection for negative count, got %d", len(got))
	}

	if got := results.TopByScore(5); len(got) != 1 {
		t.Fatalf("expected all results, got %d", len(got))
	}

	if len(results) != 1 || results[0].TrialID != "NCT1" {
		t.Fatal("selection must not mutate the receiver")
	}
}

func TestIDSet(t *testing.T) {
	t.Parallel()

	results := Results{scored("NCT1", nil), scored("NCT2", fptr(5))}

	ids := results.IDSet()
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}

	for _, id := range []string{"NCT1", "NCT2"} {
		if _, ok := ids[id]; !ok {
			t.Fatalf("missing id %s", id)
		}
	}
}

func TestStringListUnmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect StringList
	}{
		{name: "null", input: `null`, expect: nil},
		{name: "bare string", input: `"no ECOG data"`, expect: StringList{"no ECOG data"}},
		{name: "array", input: `["a", "b"]`, expect: StringList{"a", "b"}},
		{name: "numbers", input: `[1, 2]`, expect: StringList{"1", "2"}},
		{name: "drops empties", input: `["", "kept"]`, expect: StringList{"kept"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got StringList
			if err := json.Unmarshal([]byte(tt.input), &got); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !reflect.DeepEqual(got, tt.expect) {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
		})
	}

	var got StringList
	if err := json.Unmarshal([]byte(`{invalid`), &got); err == nil {
		t.Fatal("expected an error for malformed json")
	}
}

func TestResultKeepsNullScoresInJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(&Result{TrialID: "NCT1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, field := range []string{"eligibility_probability", "clinical_benefit_score", "total_score"} {
		if !strings.Contains(string(data), `"`+field+`":null`) {
			t.Fatalf("expected %s to stay null, got %s", field, data)
		}
	}

	var back Result
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if back.Response.TotalScore != nil {
		t.Fatalf("expected nil total score, got %v", back.Response.TotalScore)
	}
}
