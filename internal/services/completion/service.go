package completion

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"product-recommender/internal/common/config"
	"product-recommender/internal/common/errors"
	"product-recommender/internal/common/logger"
	"product-recommender/internal/common/metrics"
	"product-recommender/internal/common/retry"
	"product-recommender/internal/common/validation"
)

// Roles understood by the prompt file.
const (
	RoleRouter   = "router"
	RolePlanner  = "planner"
	RoleGeneral  = "general"
	RoleAnswerer = "answerer"
)

// Completer is the structured-completion capability the stages depend on.
// out receives the validated object.
type Completer interface {
	Complete(ctx context.Context, role string, excerpt interface{}, schemaID string, out interface{}) error
}

// PromptSource supplies the current instruction text for a role.
type PromptSource interface {
	Get(role string) (config.PromptSet, bool)
}

// Service validates backend output against versioned schemas.
type Service struct {
	backend Backend
	prompts PromptSource
	schemas *validation.Registry
	config  *Config
	logger  logger.Logger
}

func NewService(cfg *Config, backend Backend, prompts PromptSource, schemas *validation.Registry, log logger.Logger) *Service {
	return &Service{
		backend: backend,
		prompts: prompts,
		schemas: schemas,
		config:  cfg,
		logger:  log.With(map[string]interface{}{"component": "completion", "backend": backend.Name()}),
	}
}

// NewBackend picks the backend named in cfg.
func NewBackend(cfg *Config) (Backend, error) {
	switch cfg.Backend {
	case "http", "":
		return NewHTTPBackend(cfg), nil
	case "openai":
		return NewOpenAIBackend(cfg), nil
	default:
		return nil, fmt.Errorf("unknown completion backend %q", cfg.Backend)
	}
}

// Complete returns ServiceUnavailable for transport failures once the retry
// budget is spent, and SchemaViolation for output that does not validate.
// SchemaViolation is not retried here; the calling stage owns that budget.
func (s *Service) Complete(ctx context.Context, role string, excerpt interface{}, schemaID string, out interface{}) error {
	prompt, ok := s.prompts.Get(role)
	if !ok {
		return errors.NewServiceUnavailableError("completion", fmt.Errorf("no prompt configured for role %q", role))
	}
	schemaDoc, ok := s.schemas.Document(schemaID)
	if !ok {
		return fmt.Errorf("unknown schema %q", schemaID)
	}

	userMessage, err := buildUserMessage(excerpt, schemaDoc)
	if err != nil {
		return err
	}

	req := GenerateRequest{
		Role:        role,
		System:      prompt.System,
		User:        userMessage,
		Model:       s.config.Model,
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
	}

	start := time.Now()
	var raw string
	attempts, err := retry.Do(ctx, retry.DefaultPolicy(s.config.MaxRetries), isTransient, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			metrics.StageRetries.WithLabelValues(role, "transport").Inc()
		}
		callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()

		text, genErr := s.backend.Generate(callCtx, req)
		if genErr != nil {
			return errors.NewServiceUnavailableError("completion", genErr)
		}
		raw = text
		return nil
	})
	if err != nil {
		s.logger.Warn("completion call failed", map[string]interface{}{
			"role":     role,
			"attempts": attempts,
			"error":    err.Error(),
		})
		if !stderrors.Is(err, errors.ErrServiceUnavailable) {
			return errors.NewServiceUnavailableError("completion", err)
		}
		return err
	}

	if err := s.decode(raw, schemaID, out); err != nil {
		s.logger.Warn("completion output rejected", map[string]interface{}{
			"role":          role,
			"schema":        schemaID,
			"promptVersion": prompt.Version,
			"error":         err.Error(),
		})
		return err
	}

	s.logger.Debug("completion succeeded", map[string]interface{}{
		"role":          role,
		"schema":        schemaID,
		"promptVersion": prompt.Version,
		"attempts":      attempts,
		"durationMs":    time.Since(start).Milliseconds(),
	})
	return nil
}

func (s *Service) decode(raw, schemaID string, out interface{}) error {
	cleaned := sanitizeJSON(raw)
	if cleaned == "" {
		return errors.NewSchemaViolationError(schemaID, []string{"empty output"})
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return errors.NewSchemaViolationError(schemaID, []string{"output is not JSON: " + err.Error()})
	}

	problems, err := s.schemas.Validate(schemaID, doc)
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return errors.NewSchemaViolationError(schemaID, problems)
	}

	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return errors.NewSchemaViolationError(schemaID, []string{"output does not decode: " + err.Error()})
	}
	return nil
}

func isTransient(err error) bool {
	return stderrors.Is(err, errors.ErrServiceUnavailable)
}

func buildUserMessage(excerpt interface{}, schemaDoc string) (string, error) {
	excerptJSON, err := json.MarshalIndent(excerpt, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode state excerpt: %w", err)
	}

	var parts []string
	parts = append(parts, "Input:")
	parts = append(parts, string(excerptJSON))
	parts = append(parts, "\nRespond with one JSON object and nothing else. It must conform to this JSON schema:")
	parts = append(parts, schemaDoc)
	return strings.Join(parts, "\n"), nil
}
