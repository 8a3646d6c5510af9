package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/upswake/upswake/internal/api/common"
	"github.com/upswake/upswake/internal/store"
)

type SubscriberHandler struct {
	*common.CRUDHandler[store.SubscriberWithPreferences]
}

func NewSubscriberHandler(deps *common.Dependencies) *SubscriberHandler {
	h := &SubscriberHandler{}

	h.CRUDHandler = &common.CRUDHandler[store.SubscriberWithPreferences]{
		Deps: deps,
		Name: "Subscriber",
	}

	h.ListFunc = h.list
	h.CreateFunc = h.create
	h.UpdateFunc = h.update
	h.DeleteFunc = h.delete

	return h
}

func (h *SubscriberHandler) list(ctx context.Context) ([]store.SubscriberWithPreferences, error) {
	return h.Deps.Store.ListSubscribers(ctx)
}

func (h *SubscriberHandler) create(ctx context.Context, input store.SubscriberWithPreferences) (store.SubscriberWithPreferences, error) {
	if err := h.Deps.Validate.Struct(input); err != nil {
		return store.SubscriberWithPreferences{}, err
	}

	id, err := h.Deps.Store.CreateSubscriber(ctx, input)
	if err != nil {
		return store.SubscriberWithPreferences{}, err
	}

	input.ID = id
	return input, nil
}

func (h *SubscriberHandler) update(ctx context.Context, id uuid.UUID, input store.SubscriberWithPreferences) (store.SubscriberWithPreferences, error) {
	input.ID = id
	if err := h.Deps.Validate.Struct(input); err != nil {
		return store.SubscriberWithPreferences{}, err
	}

	if err := h.Deps.Store.UpdateSubscriber(ctx, input); err != nil {
		return store.SubscriberWithPreferences{}, err
	}
	return input, nil
}

func (h *SubscriberHandler) delete(ctx context.Context, id uuid.UUID) error {
	return h.Deps.Store.DeleteSubscriber(ctx, id)
}
