package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"traincheck/internal/assessment"
)

type seedQuestion struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Kind          string   `json:"kind"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer"`
}

type seedAssessment struct {
	TrainingID     uuid.UUID      `json:"training_id"`
	PassPercentage int            `json:"pass_percentage"`
	MaxAttempts    int            `json:"max_attempts"`
	Questions      []seedQuestion `json:"questions"`
}

// loadAssessmentSeed fills the in-process assessment provider from a JSON
// file. Single-node deployments configure their trainings this way; a real
// training-catalog service would replace the provider instead.
func loadAssessmentSeed(path string, provider *assessment.MemoryProvider) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read assessment seed: %w", err)
	}

	var seeds []seedAssessment
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return 0, fmt.Errorf("parse assessment seed: %w", err)
	}

	for _, seed := range seeds {
		a := &assessment.Assessment{
			TrainingID:     seed.TrainingID,
			PassPercentage: seed.PassPercentage,
			MaxAttempts:    seed.MaxAttempts,
		}
		for _, q := range seed.Questions {
			a.Questions = append(a.Questions, assessment.Question{
				ID:            q.ID,
				Text:          q.Text,
				Kind:          assessment.QuestionKind(q.Kind),
				Options:       q.Options,
				CorrectAnswer: q.CorrectAnswer,
			})
		}
		if err := provider.Put(a); err != nil {
			return 0, fmt.Errorf("seed assessment for training %s: %w", seed.TrainingID, err)
		}
	}
	return len(seeds), nil
}
