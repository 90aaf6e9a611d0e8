package extract

import (
	"context"
)

var promptQuestions = []string{
	"How did today feel overall?",
	"What took most of your energy today?",
	"Who did you spend time with, and how did it go?",
	"What is one thing you are proud of from today?",
	"Is there anything you want to do differently tomorrow?",
}

// PromptResponder is used when no model is configured. It walks a fixed list
// of reflective questions based on how many user turns have been written.
type PromptResponder struct{}

func (PromptResponder) Reply(_ context.Context, transcript []Turn, _ UserContext) (string, error) {
	n := 0
	for _, t := range transcript {
		if t.Role == RoleUser {
			n++
		}
	}
	return promptQuestions[n%len(promptQuestions)], nil
}
