package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"testflow_backend/apperr"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// checkStruct runs the validate tags on v and reports every failing field in
// one ValidationError.
func checkStruct(op string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return apperr.Validation(op, "invalid input")
	}
	fields := make([]string, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return apperr.Validation(op, "%s", strings.Join(fields, ", "))
}

type actorKey struct{}

// WithActor stores the authenticated admin's username on ctx.
func WithActor(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, actorKey{}, username)
}

// Actor returns the username stored by WithActor, or "anonymous".
func Actor(ctx context.Context) string {
	if name, ok := ctx.Value(actorKey{}).(string); ok && name != "" {
		return name
	}
	return "anonymous"
}
