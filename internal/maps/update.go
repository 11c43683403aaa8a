package maps

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPath reports an edit path that does not address a value in the
// document.
var ErrInvalidPath = errors.New("maps: invalid path")

// Path addresses a value inside a document. Elements are object keys
// (string) or array indices (int), e.g. {"placed_unit", 0, "transform"}.
type Path []any

// ParsePath splits a dotted path such as "placed_unit.0.transform.position.x".
// Numeric segments become array indices.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	parts := strings.Split(s, ".")
	p := make(Path, len(parts))
	for i, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, s)
		}
		if n, err := strconv.Atoi(part); err == nil {
			p[i] = n
			continue
		}
		p[i] = part
	}
	return p, nil
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, e := range p {
		parts[i] = fmt.Sprint(e)
	}
	return strings.Join(parts, ".")
}

// Normalize converts JSON-decoded path elements (float64 indices) into the
// int/string form Update expects.
func (p Path) Normalize() (Path, error) {
	out := make(Path, len(p))
	for i, e := range p {
		switch v := e.(type) {
		case string:
			out[i] = v
		case int:
			out[i] = v
		case float64:
			if v != float64(int(v)) {
				return nil, fmt.Errorf("%w: non-integer index %v", ErrInvalidPath, v)
			}
			out[i] = int(v)
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
			}
			out[i] = int(n)
		default:
			return nil, fmt.Errorf("%w: element %d has type %T", ErrInvalidPath, i, e)
		}
	}
	return out, nil
}

// Update returns a copy of d with the value at path replaced. d itself is
// never modified. The result is re-validated so an edit cannot leave the
// terrain grid inconsistent with its size.
func (d *Document) Update(path Path, value any) (*Document, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("copy document: %w", err)
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("copy document: %w", err)
	}

	// Round-trip the value so Go structs are stored in their JSON shape.
	vraw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value at %s: %w", path, err)
	}
	var v any
	if err := json.Unmarshal(vraw, &v); err != nil {
		return nil, fmt.Errorf("encode value at %s: %w", path, err)
	}

	if err := setPath(tree, path, v); err != nil {
		return nil, err
	}

	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("rebuild document: %w", err)
	}
	var next Document
	if err := json.Unmarshal(out, &next); err != nil {
		return nil, fmt.Errorf("%w: value at %s does not fit: %v", ErrInvalidPath, path, err)
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("edit %s: %w", path, err)
	}
	return &next, nil
}

func setPath(node any, path Path, value any) error {
	last := len(path) - 1
	for i, elem := range path {
		switch n := node.(type) {
		case map[string]any:
			key, ok := elem.(string)
			if !ok {
				return fmt.Errorf("%w: %s: index %v into object", ErrInvalidPath, path, elem)
			}
			if i == last {
				if _, exists := n[key]; !exists {
					return fmt.Errorf("%w: %s: no field %q", ErrInvalidPath, path, key)
				}
				n[key] = value
				return nil
			}
			next, exists := n[key]
			if !exists {
				return fmt.Errorf("%w: %s: no field %q", ErrInvalidPath, path, key)
			}
			node = next
		case []any:
			idx, ok := elem.(int)
			if !ok {
				return fmt.Errorf("%w: %s: key %v into array", ErrInvalidPath, path, elem)
			}
			if idx < 0 || idx >= len(n) {
				return fmt.Errorf("%w: %s: index %d out of range (len %d)", ErrInvalidPath, path, idx, len(n))
			}
			if i == last {
				n[idx] = value
				return nil
			}
			node = n[idx]
		default:
			return fmt.Errorf("%w: %s: cannot descend into %T", ErrInvalidPath, path, node)
		}
	}
	return nil
}
