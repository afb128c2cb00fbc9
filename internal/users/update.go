package users

import (
	"fmt"
	"strings"
)

// UpdateCommand is a parameterized statement. Args are positional; the user
// id is always the last one and appears only in the WHERE clause.
type UpdateCommand struct {
	UserID  string
	SQL     string
	Args    []any
	Columns []string
}

const returningColumns = "user_id, username, email"

// BuildUpdate assembles the update for the supplied fields in declared order
// (username, email). Column names come from a fixed list; only values are
// bound, so no request input reaches the SQL text.
func BuildUpdate(idStr string, f UpdateFields) (UpdateCommand, error) {
	id, err := ParseID(idStr)
	if err != nil {
		return UpdateCommand{}, err
	}

	declared := []struct {
		column string
		value  *string
		check  func(string) error
	}{
		{"username", f.Username, nil},
		{"email", f.Email, func(s string) error {
			if !emailValid(s) {
				return ErrInvalidEmail
			}
			return nil
		}},
	}

	var (
		sets []string
		args []any
		cols []string
	)
	for _, d := range declared {
		v := trimmed(d.value)
		if v == nil {
			continue
		}
		if d.check != nil {
			if err := d.check(*v); err != nil {
				return UpdateCommand{}, err
			}
		}
		args = append(args, *v)
		cols = append(cols, d.column)
		sets = append(sets, fmt.Sprintf("%s = $%d", d.column, len(args)))
	}
	if len(sets) == 0 {
		return UpdateCommand{}, ErrNoFieldsProvided
	}

	args = append(args, id.String())
	sql := fmt.Sprintf("UPDATE users SET %s WHERE user_id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), returningColumns)

	return UpdateCommand{UserID: id.String(), SQL: sql, Args: args, Columns: cols}, nil
}
