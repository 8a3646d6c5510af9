package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/upswake/upswake/internal/api/common"
	"github.com/upswake/upswake/internal/store"
)

type AgentHandler struct {
	*common.CRUDHandler[store.Agent]
}

func NewAgentHandler(deps *common.Dependencies) *AgentHandler {
	h := &AgentHandler{}

	h.CRUDHandler = &common.CRUDHandler[store.Agent]{
		Deps: deps,
		Name: "Agent",
	}

	h.ListFunc = h.list
	h.CreateFunc = h.create
	h.GetFunc = h.get
	h.UpdateFunc = h.update
	h.DeleteFunc = h.delete

	return h
}

func (h *AgentHandler) list(ctx context.Context) ([]store.Agent, error) {
	return h.Deps.Store.ListAgents(ctx)
}

func (h *AgentHandler) create(ctx context.Context, input store.Agent) (store.Agent, error) {
	if err := h.Deps.Validate.Struct(input); err != nil {
		return store.Agent{}, err
	}
	// Default to the standard upsd port.
	if input.Port == 0 {
		input.Port = 3493
	}
	return h.Deps.Store.CreateAgent(ctx, input)
}

func (h *AgentHandler) get(ctx context.Context, id uuid.UUID) (store.Agent, error) {
	return h.Deps.Store.GetAgent(ctx, id)
}

func (h *AgentHandler) update(ctx context.Context, id uuid.UUID, input store.Agent) (store.Agent, error) {
	existing, err := h.Deps.Store.GetAgent(ctx, id)
	if err != nil {
		return store.Agent{}, err
	}

	// Merge: only fields present in the payload replace the stored values.
	if input.Name != "" {
		existing.Name = input.Name
	}
	if input.Host != "" {
		existing.Host = input.Host
	}
	if input.Port != 0 {
		existing.Port = input.Port
	}
	if input.Username != "" {
		existing.Username = input.Username
	}
	if input.Password != "" {
		existing.Password = input.Password
	}

	if err := h.Deps.Validate.Struct(existing); err != nil {
		return store.Agent{}, err
	}
	return h.Deps.Store.UpdateAgent(ctx, existing)
}

func (h *AgentHandler) delete(ctx context.Context, id uuid.UUID) error {
	return h.Deps.Store.DeleteAgent(ctx, id)
}
