package db

import (
	"strings"
)

// Builder composes a WHERE clause from optional predicates. Every caller
// supplied value is bound as an argument; column names must come from code.
type Builder struct {
	dialect Dialect
	args    []any
	conds   []string
}

// NewBuilder returns an empty builder for the given dialect.
func NewBuilder(d Dialect) *Builder {
	return &Builder{dialect: d}
}

// Arg binds v and returns its placeholder.
func (b *Builder) Arg(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args))
}

// Where adds a raw condition. Placeholders inside cond must come from Arg.
func (b *Builder) Where(cond string) *Builder {
	b.conds = append(b.conds, cond)
	return b
}

// Eq adds col = v.
func (b *Builder) Eq(col string, v any) *Builder {
	return b.Where(col + " = " + b.Arg(v))
}

// EqFold adds a case-insensitive equality match.
func (b *Builder) EqFold(col, v string) *Builder {
	return b.Where("LOWER(" + col + ") = " + b.Arg(strings.ToLower(v)))
}

// Contains adds a case-insensitive substring match with LIKE wildcards in v
// escaped.
func (b *Builder) Contains(col, v string) *Builder {
	pattern := "%" + EscapeLike(strings.ToLower(v)) + "%"
	return b.Where("LOWER(" + col + ") LIKE " + b.Arg(pattern) + ` ESCAPE '\'`)
}

// InFold adds LOWER(col) IN (...). An empty list adds nothing.
func (b *Builder) InFold(col string, vals []string) *Builder {
	if len(vals) == 0 {
		return b
	}
	marks := make([]string, len(vals))
	for i, v := range vals {
		marks[i] = b.Arg(strings.ToLower(v))
	}
	return b.Where("LOWER(" + col + ") IN (" + strings.Join(marks, ", ") + ")")
}

// Gte adds col >= v.
func (b *Builder) Gte(col string, v any) *Builder {
	return b.Where(col + " >= " + b.Arg(v))
}

// Lte adds col <= v.
func (b *Builder) Lte(col string, v any) *Builder {
	return b.Where(col + " <= " + b.Arg(v))
}

// Clause renders " WHERE a AND b", or "" when there are no conditions.
func (b *Builder) Clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// Args returns the bound arguments in placeholder order.
func (b *Builder) Args() []any {
	return b.args
}

// EscapeLike escapes LIKE metacharacters using backslash.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
