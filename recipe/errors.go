package recipe

import "errors"

var (
	// ErrProductNotFound indicates that no recipe exists for the requested product type.
	ErrProductNotFound = errors.New("recipe: product not found")

	// ErrInvalidRecipe indicates a recipe file that parses but violates a structural rule.
	ErrInvalidRecipe = errors.New("recipe: invalid recipe")
)
