package pattern

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strconv"
)

var (
	// ErrDisallowedIdentifier is returned for names other than reg_N and
	// const_N, or for names without a value.
	ErrDisallowedIdentifier = errors.New("identifier not allowed in constant expression")

	// ErrDisallowedExpression is returned for any construct outside integer
	// literals, parentheses, unary minus and + - *.
	ErrDisallowedExpression = errors.New("construct not allowed in constant expression")
)

var allowedName = regexp.MustCompile(`^(?:reg|const)_[0-9]+$`)

// Eval computes a constant expression over the given token values. The
// expression is parsed and walked, never executed.
func Eval(expr string, values map[string]int64) (int64, error) {
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", expr, errors.Join(ErrDisallowedExpression, err))
	}
	return eval(node, values)
}

// Check validates the shape of expr and the names it uses without values.
func Check(expr string) error {
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return fmt.Errorf("parse %q: %w", expr, errors.Join(ErrDisallowedExpression, err))
	}
	_, err = eval(node, nil)
	return err
}

// eval with nil values only validates.
func eval(node ast.Expr, values map[string]int64) (int64, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT {
			return 0, fmt.Errorf("literal %s: %w", n.Value, ErrDisallowedExpression)
		}
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("literal %s: %w", n.Value, ErrDisallowedExpression)
		}
		return v, nil

	case *ast.Ident:
		if !allowedName.MatchString(n.Name) {
			return 0, fmt.Errorf("%s: %w", n.Name, ErrDisallowedIdentifier)
		}
		if values == nil {
			return 0, nil
		}
		v, ok := values[n.Name]
		if !ok {
			return 0, fmt.Errorf("%s has no value: %w", n.Name, ErrDisallowedIdentifier)
		}
		return v, nil

	case *ast.ParenExpr:
		return eval(n.X, values)

	case *ast.UnaryExpr:
		x, err := eval(n.X, values)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.SUB:
			return -x, nil
		case token.ADD:
			return x, nil
		}
		return 0, fmt.Errorf("unary %s: %w", n.Op, ErrDisallowedExpression)

	case *ast.BinaryExpr:
		x, err := eval(n.X, values)
		if err != nil {
			return 0, err
		}
		y, err := eval(n.Y, values)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		}
		return 0, fmt.Errorf("operator %s: %w", n.Op, ErrDisallowedExpression)
	}
	return 0, fmt.Errorf("%T: %w", node, ErrDisallowedExpression)
}
