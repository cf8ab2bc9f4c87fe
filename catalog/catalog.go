// Package catalog manages the ordered instruction catalog and the closing
// questionnaire. Inputs are validated here; ordering and atomicity are
// enforced by the store.
package catalog

import (
	"context"
	"strings"

	"testflow_backend/models"
	"testflow_backend/ordering"
	"testflow_backend/store"

	"go.uber.org/zap"
)

type Catalog struct {
	store  store.Instructions
	logger *zap.Logger
}

func New(s store.Instructions, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{store: s, logger: logger.Named("catalog")}
}

func (c *Catalog) List(ctx context.Context) ([]models.Instruction, error) {
	instructions, err := c.store.ListInstructions(ctx)
	if err != nil {
		return nil, err
	}
	if instructions == nil {
		instructions = []models.Instruction{}
	}
	return instructions, nil
}

func (c *Catalog) Get(ctx context.Context, id int) (models.Instruction, error) {
	return c.store.GetInstruction(ctx, id)
}

// OrderedIDs returns the instruction ids in traversal order.
func (c *Catalog) OrderedIDs(ctx context.Context) ([]int, error) {
	instructions, err := c.store.ListInstructions(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(instructions))
	for i, in := range instructions {
		ids[i] = in.ID
	}
	return ids, nil
}

func (c *Catalog) Create(ctx context.Context, in models.InstructionInput) (models.Instruction, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.VideoURL = blankToNil(in.VideoURL)
	if err := checkStruct("catalog.Create", in); err != nil {
		return models.Instruction{}, err
	}

	created, err := c.store.CreateInstruction(ctx, in)
	if err != nil {
		return models.Instruction{}, err
	}
	c.logger.Info("instruction created",
		zap.String("actor", Actor(ctx)),
		zap.Int("id", created.ID),
		zap.Int("order_index", created.OrderIndex))
	return created, nil
}

func (c *Catalog) Update(ctx context.Context, id int, patch models.InstructionPatch) (models.Instruction, error) {
	patch.Title = trimPtr(patch.Title)
	patch.Content = trimPtr(patch.Content)
	patch.VideoURL = trimPtr(patch.VideoURL)
	if err := checkStruct("catalog.Update", patch); err != nil {
		return models.Instruction{}, err
	}

	updated, err := c.store.UpdateInstruction(ctx, id, patch)
	if err != nil {
		return models.Instruction{}, err
	}
	c.logger.Info("instruction updated", zap.String("actor", Actor(ctx)), zap.Int("id", id))
	return updated, nil
}

func (c *Catalog) Delete(ctx context.Context, id int) error {
	if err := c.store.DeleteInstruction(ctx, id); err != nil {
		return err
	}
	c.logger.Info("instruction deleted", zap.String("actor", Actor(ctx)), zap.Int("id", id))
	return nil
}

func (c *Catalog) Reorder(ctx context.Context, ids []int) ([]models.Instruction, error) {
	current, err := c.OrderedIDs(ctx)
	if err != nil {
		return nil, err
	}
	// The store checks again under its own lock.
	if err := ordering.CheckPermutation(current, ids); err != nil {
		return nil, err
	}

	instructions, err := c.store.ReorderInstructions(ctx, ids)
	if err != nil {
		return nil, err
	}
	c.logger.Info("instructions reordered", zap.String("actor", Actor(ctx)), zap.Ints("ids", ids))
	return instructions, nil
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return trimPtr(s)
}
