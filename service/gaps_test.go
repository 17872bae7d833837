package service

import (
	"fmt"
	"testing"

	"paperlens-backend/models"

	"github.com/stretchr/testify/assert"
)

func TestMissingCombinations(t *testing.T) {
	tests := []struct {
		name    string
		methods []models.Methodology
		limit   int
		want    []models.MissingCombination
	}{
		{
			name:    "no methodologies",
			methods: nil,
			want:    nil,
		},
		{
			name: "every pair evaluated",
			methods: []models.Methodology{
				{Model: "BERT", Datasets: []string{"SQuAD"}},
			},
			want: nil,
		},
		{
			name: "cross pairs are missing",
			methods: []models.Methodology{
				{Model: "BERT", Datasets: []string{"SQuAD", "GLUE"}},
				{Model: "T5", Datasets: []string{"glue"}},
			},
			want: []models.MissingCombination{
				{Dataset: "SQuAD", Model: "T5"},
			},
		},
		{
			name: "paper without model only contributes datasets",
			methods: []models.Methodology{
				{Model: "ResNet", Datasets: []string{"ImageNet"}},
				{Datasets: []string{"CIFAR-10", " "}},
			},
			want: []models.MissingCombination{
				{Dataset: "CIFAR-10", Model: "ResNet"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MissingCombinations(tt.methods, tt.limit))
		})
	}
}

func TestMissingCombinations_Limit(t *testing.T) {
	var methods []models.Methodology
	for i := 0; i < 6; i++ {
		methods = append(methods, models.Methodology{
			Model:    fmt.Sprintf("model-%d", i),
			Datasets: []string{fmt.Sprintf("data-%d", i)},
		})
	}
	got := MissingCombinations(methods, maxMissingCombinations)
	assert.Len(t, got, maxMissingCombinations)
	assert.Equal(t, models.MissingCombination{Dataset: "data-0", Model: "model-1"}, got[0])
}

func TestCommonLimitations(t *testing.T) {
	methods := []models.Methodology{
		{Results: "performance degrades on long documents with many entities", Summary: "A retrieval model."},
		{Results: "Performance degrades on long documents, as expected.", Metrics: []string{"F1"}},
		{Results: "Strong results on short inputs."},
	}
	got := CommonLimitations(methods)
	assert.Contains(t, got, "performance degrades on long documents")
	assert.NotContains(t, got, "strong results on short inputs")

	assert.Nil(t, CommonLimitations(methods[:1]))
}
