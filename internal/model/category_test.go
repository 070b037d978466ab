package model

import "testing"

func TestParseCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Category
	}{
		{"marketing", CategoryMarketing},
		{"Analytics", CategoryAnalytics},
		{" statistics ", CategoryAnalytics},
		{"functional", CategoryFunctional},
		{"necessary", CategoryNecessary},
		{"other", CategoryOther},
		{"", CategoryUnclassified},
		{"advertising", CategoryUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := ParseCategory(tt.in); got != tt.want {
				t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCategoryPriority(t *testing.T) {
	t.Parallel()

	order := []Category{
		CategoryMarketing,
		CategoryAnalytics,
		CategoryOther,
		CategoryFunctional,
		CategoryNecessary,
		CategoryUnclassified,
	}
	for i := 1; i < len(order); i++ {
		if order[i-1].Priority() >= order[i].Priority() {
			t.Errorf("%s should sort before %s", order[i-1], order[i])
		}
	}
	if Category("bogus").Priority() != CategoryUnclassified.Priority() {
		t.Error("unknown category should rank with unclassified")
	}
}

func TestRequiresConsent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		category Category
		want     bool
	}{
		{CategoryMarketing, true},
		{CategoryAnalytics, true},
		{CategoryOther, true},
		{CategoryUnclassified, true},
		{CategoryFunctional, false},
		{CategoryNecessary, false},
	}

	for _, tt := range tests {
		if got := tt.category.RequiresConsent(); got != tt.want {
			t.Errorf("%s.RequiresConsent() = %v, want %v", tt.category, got, tt.want)
		}
	}
}
