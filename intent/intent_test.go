package intent

import "testing"

func TestClassifiers(t *testing.T) {
	tests := []struct {
		q                                   string
		comparison, funding, trend, nTrend bool
	}{
		{"Compare Climeworks and Swissdrones", true, false, false, false},
		{"How does ICT stack up against biotech funding?", true, true, false, false},
		{"Climeworks vs. Swissdrones", true, false, false, false},
		{"Show funding trends in cleantech over time", false, true, true, true},
		{"What is the growth of medtech investment?", false, true, true, true},
		{"History of biotech companies in Basel", false, false, false, true},
		{"List Novswiss startups", false, false, false, false},
		{"Which startups got the most money?", false, true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.q, func(t *testing.T) {
			if got := IsComparison(tt.q); got != tt.comparison {
				t.Errorf("IsComparison = %v", got)
			}
			if got := IsFunding(tt.q); got != tt.funding {
				t.Errorf("IsFunding = %v", got)
			}
			if got := IsTrend(tt.q); got != tt.trend {
				t.Errorf("IsTrend = %v", got)
			}
			if got := IsNarrativeTrend(tt.q); got != tt.nTrend {
				t.Errorf("IsNarrativeTrend = %v", got)
			}
		})
	}
}

func TestWantsStatistics(t *testing.T) {
	if !WantsStatistics("average round AMOUNT") {
		t.Error("amount should trigger statistics")
	}
	if WantsStatistics("list companies") {
		t.Error("plain listing should not trigger statistics")
	}
}
