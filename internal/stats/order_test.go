package stats

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareGroupNames(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"Day_2", "Day_10", -1},
		{"Day_10", "Day_2", 1},
		{"1.5", "2", -1},
		{"Day_0.5", "Day_0.25", 1},
		{"control", "oleate", -1},
		{"Day", "Day_1", -1},
		{"Day_2", "Day_2", 0},
		{"Day_2", "Day_02", 1},
		{"2h", "10h", -1},
		{"", "a", -1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareGroupNames(tt.a, tt.b))
		})
	}
}

func TestCompareGroupNames_Sort(t *testing.T) {
	names := []string{"Day_10", "Day_2", "Day_0", "Day_1.5", "Day_3"}
	slices.SortFunc(names, CompareGroupNames)
	assert.Equal(t, []string{"Day_0", "Day_1.5", "Day_2", "Day_3", "Day_10"}, names)
}

func TestSummarizeBatch_GroupsInDayOrder(t *testing.T) {
	got := SummarizeBatch([]ImageSummary{
		summary("a.png", "Day_10", 0.3, 3),
		summary("b.png", "Day_2", 0.2, 2),
		summary("c.png", "Day_1", 0.1, 1),
	})

	var order []string
	for _, g := range got.Groups {
		order = append(order, g.Group)
	}
	assert.Equal(t, []string{"Day_1", "Day_2", "Day_10"}, order)
}
