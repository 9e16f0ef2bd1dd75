package service

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/stemsi/speaking-test/internal/model"
	"gopkg.in/yaml.v3"
)

// ErrQuestionBankInvalid is returned when a bank is missing a part or has blank prompts.
var ErrQuestionBankInvalid = errors.New("question bank invalid")

// QuestionService serves the question reference loaded at startup.
type QuestionService struct {
	ref model.QuestionReference
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(ref model.QuestionReference) *QuestionService {
	return &QuestionService{ref: ref}
}

// Questions returns the question reference.
func (s *QuestionService) Questions() model.QuestionReference {
	return s.ref
}

// LoadQuestionBank reads the bank from a YAML file, or returns the built-in
// bank when path is empty.
func LoadQuestionBank(path string) (model.QuestionReference, error) {
	if path == "" {
		return DefaultQuestionBank(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.QuestionReference{}, fmt.Errorf("read question bank: %w", err)
	}
	return ParseQuestionBank(raw)
}

// ParseQuestionBank decodes a YAML bank with part1, part2 and part3 lists.
func ParseQuestionBank(raw []byte) (model.QuestionReference, error) {
	var ref model.QuestionReference
	if err := yaml.Unmarshal(raw, &ref); err != nil {
		return model.QuestionReference{}, fmt.Errorf("%w: %v", ErrQuestionBankInvalid, err)
	}
	if err := validateQuestionBank(ref); err != nil {
		return model.QuestionReference{}, err
	}
	return ref, nil
}

func validateQuestionBank(ref model.QuestionReference) error {
	for _, part := range model.Parts {
		prompts := ref.Questions(part)
		if len(prompts) == 0 {
			return fmt.Errorf("%w: %s has no questions", ErrQuestionBankInvalid, part)
		}
		for i, prompt := range prompts {
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("%w: %s question %d is blank", ErrQuestionBankInvalid, part, i+1)
			}
		}
	}
	return nil
}

// DefaultQuestionBank is the built-in IELTS-style prompt set.
func DefaultQuestionBank() model.QuestionReference {
	return model.QuestionReference{
		Part1: []string{
			"What is your name?",
			"Where are you from?",
			"Do you work or study?",
			"What do you like to do in your free time?",
		},
		Part2: []string{
			"Describe a book that you have recently read.",
			"You should say: what the book was about, why you chose to read it, and how you felt about it.",
		},
		Part3: []string{
			"How important is reading in your culture?",
			"Do you think digital books will replace physical books?",
			"What are the benefits of reading to children?",
		},
	}
}
