package extract

import "testing"

func expectedSet(labels ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		m[l] = struct{}{}
	}
	return m
}

func TestSelectTable(t *testing.T) {
	t.Parallel()

	expected := expectedSet("sales#", "date of sale", "grand total")

	tests := []struct {
		name      string
		cands     []Candidate
		wantBest  int
		wantScore int
	}{
		{
			name: "layout table loses to data table",
			cands: []Candidate{
				{Index: 0, Headers: []string{"Report", "Printed"}},
				{Index: 1, Headers: []string{"Sales#", "Date of Sale", "Grand Total"}},
			},
			wantBest:  1,
			wantScore: 3,
		},
		{
			name: "case and whitespace insensitive",
			cands: []Candidate{
				{Index: 0, Headers: []string{"  SALES# ", "junk"}},
			},
			wantBest:  0,
			wantScore: 1,
		},
		{
			name: "tie goes to first",
			cands: []Candidate{
				{Index: 0, Headers: []string{"Sales#"}},
				{Index: 1, Headers: []string{"Grand Total"}},
			},
			wantBest:  0,
			wantScore: 1,
		},
		{
			name: "duplicates count once",
			cands: []Candidate{
				{Index: 0, Headers: []string{"Sales#", "Sales#", "Sales#"}},
				{Index: 1, Headers: []string{"Sales#", "Grand Total"}},
			},
			wantBest:  1,
			wantScore: 2,
		},
		{
			name: "zero score still selects first",
			cands: []Candidate{
				{Index: 0, Headers: []string{"a"}},
				{Index: 1, Headers: []string{"b"}},
			},
			wantBest:  0,
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			best, score, ok := SelectTable(tt.cands, expected)
			if !ok || best != tt.wantBest || score != tt.wantScore {
				t.Fatalf("SelectTable=%d,%d,%v want %d,%d", best, score, ok, tt.wantBest, tt.wantScore)
			}
		})
	}
}

func TestSelectTable_Empty(t *testing.T) {
	t.Parallel()
	if _, _, ok := SelectTable(nil, expectedSet("x")); ok {
		t.Fatalf("empty candidate list must report !ok")
	}
}
