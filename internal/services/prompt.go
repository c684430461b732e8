package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	apperr "github.com/yungbote/mindgraph-backend/internal/pkg/errors"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
)

const PromptKeyExpandNode = "expand-node"

var defaultPrompts = map[string]string{
	PromptKeyExpandNode: expandNodePrompt,
}

const expandNodePrompt = `You are an expert knowledge graph assistant.
Your task is to expand a knowledge graph based on the concepts provided.
The user has selected:
{source_concepts}

{existing_nodes_context}

Based on this, generate a list of 3 to 5 related concepts.
For each new concept, provide:
1.  A "name" (string).
2.  A "description" (string, 1-2 sentences).
3.  A relationship edge to one of the given or new concepts (e.g., "is a type of", "is composed of", "is a prerequisite for").

Respond with ONLY a valid JSON object in the following format:
{
  "nodes": [
    {
      "name": "Generated Concept Name 1",
      "description": "A brief description of this concept."
    }
  ],
  "edges": [
    {
      "source": {"is_new": false, "index": 0},
      "target": {"is_new": true, "index": 0},
      "label": "RELATIONSHIP_LABEL"
    }
  ]
}

- "is_new" selects the list an endpoint refers to: true for the "nodes" list
  above, false for the original source concepts in the order given.
- "index" is the 0-based position within that list.
- "label" is the relationship type as a string.`

// PromptService serves prompt templates: compiled-in defaults overridable
// through a YAML file edited via the prompts API. Only keys with a default
// may be overridden.
type PromptService struct {
	log       *logger.Logger
	storePath string
	mu        sync.Mutex
}

func NewPromptService(log *logger.Logger, storePath string) *PromptService {
	if strings.TrimSpace(storePath) == "" {
		storePath = "data/prompts.yaml"
	}
	return &PromptService{
		log:       log.With("service", "PromptService"),
		storePath: storePath,
	}
}

func NormalizePromptKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, " ", "-")
	return strings.ReplaceAll(key, "_", "-")
}

func (s *PromptService) Get(key string) (string, error) {
	key = NormalizePromptKey(key)

	s.mu.Lock()
	overrides, err := s.readStore()
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	if v, ok := overrides[key]; ok {
		return v, nil
	}
	if v, ok := defaultPrompts[key]; ok {
		return v, nil
	}
	return "", fmt.Errorf("prompt %q: %w", key, apperr.ErrNotFound)
}

func (s *PromptService) Upsert(key, promptText string) (string, error) {
	key = NormalizePromptKey(key)
	promptText = strings.TrimSpace(promptText)
	if promptText == "" {
		return "", fmt.Errorf("prompt text cannot be empty: %w", apperr.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	overrides, err := s.readStore()
	if err != nil {
		return "", err
	}
	if _, isDefault := defaultPrompts[key]; !isDefault {
		if _, exists := overrides[key]; !exists {
			return "", fmt.Errorf("prompt %q: %w", key, apperr.ErrNotFound)
		}
	}
	overrides[key] = promptText
	if err := s.writeStore(overrides); err != nil {
		return "", err
	}
	return promptText, nil
}

func (s *PromptService) Reset(key string) (string, error) {
	key = NormalizePromptKey(key)
	def, ok := defaultPrompts[key]
	if !ok {
		return "", fmt.Errorf("prompt %q: %w", key, apperr.ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	overrides, err := s.readStore()
	if err != nil {
		return "", err
	}
	delete(overrides, key)
	if err := s.writeStore(overrides); err != nil {
		return "", err
	}
	return def, nil
}

func (s *PromptService) readStore() (map[string]string, error) {
	raw, err := os.ReadFile(s.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read prompt store: %w", err)
	}
	out := map[string]string{}
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse prompt store: %w", err)
	}
	return out, nil
}

func (s *PromptService) writeStore(data map[string]string) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode prompt store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		return fmt.Errorf("create prompt store dir: %w", err)
	}
	if err := os.WriteFile(s.storePath, raw, 0o644); err != nil {
		return fmt.Errorf("write prompt store: %w", err)
	}
	return nil
}
