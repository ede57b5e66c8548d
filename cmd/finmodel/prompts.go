package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/planforge/finmodel/config"
	"github.com/planforge/finmodel/promptregistry"
	"github.com/planforge/finmodel/store"
)

// promptEnv is the minimal wiring prompts subcommands need: a store and a
// registry seeded with the built-in catalog, without the LLM client or job
// executor a full App requires.
type promptEnv struct {
	store   store.Store
	prompts *promptregistry.Registry
}

func withPromptEnv(ctx context.Context, cfg *config.Config, fn func(context.Context, *promptEnv) error) error {
	s, err := store.Open(ctx, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	prompts := promptregistry.NewRegistry()
	promptregistry.RegisterDefaults(prompts)

	return fn(ctx, &promptEnv{store: s, prompts: prompts})
}

// activatePrompt mirrors httpapi.handleActivatePrompt's dual write: the
// store row is durable history, the registry is what a running server
// resolves against on its next call.
func activatePrompt(ctx context.Context, env *promptEnv, projectID, key, text string) error {
	if _, ok := env.prompts.Definition(key); !ok {
		return fmt.Errorf("unknown prompt key %q", key)
	}
	v := &store.PromptVersion{
		ID:        uuid.New().String(),
		Key:       key,
		ProjectID: projectID,
		Text:      text,
		Active:    true,
	}
	if err := env.store.CreatePromptVersion(ctx, v); err != nil {
		return fmt.Errorf("save prompt version: %w", err)
	}
	if err := env.store.ActivatePromptVersion(ctx, v.ID); err != nil {
		return fmt.Errorf("activate prompt version: %w", err)
	}
	env.prompts.Activate(&promptregistry.Version{ID: v.ID, ProjectID: projectID, Key: key, Text: text, Active: true})
	fmt.Printf("activated %s (scope=%s)\n", key, scopeLabel(projectID))
	return nil
}

func resetPrompt(ctx context.Context, env *promptEnv, projectID, key string) error {
	if _, ok := env.prompts.Definition(key); !ok {
		return fmt.Errorf("unknown prompt key %q", key)
	}
	if err := env.store.DeactivatePromptVersion(ctx, projectID, key); err != nil {
		return fmt.Errorf("deactivate prompt version: %w", err)
	}
	env.prompts.Deactivate(projectID, key)
	fmt.Printf("reset %s (scope=%s) to the next tier\n", key, scopeLabel(projectID))
	return nil
}

func scopeLabel(projectID string) string {
	if projectID == "" {
		return "global"
	}
	return projectID
}

// openStoreForMigration opens the configured SQL store; OpenSQL runs its
// migrations as part of opening the connection, so reaching this point
// without error means the schema is current.
func openStoreForMigration(ctx context.Context, cfg *config.Config) (store.Store, error) {
	return store.Open(ctx, cfg.Store.DSN)
}
