package sas

import (
	"fmt"
	"strings"
)

// Permissions is a set drawn from {read, add, create, write, delete, list}.
type Permissions uint8

const (
	Read Permissions = 1 << iota
	Add
	Create
	Write
	Delete
	List
)

// permissionOrder fixes the canonical letter order "racwdl".
var permissionOrder = []struct {
	perm   Permissions
	letter byte
	word   string
}{
	{Read, 'r', "read"},
	{Add, 'a', "add"},
	{Create, 'c', "create"},
	{Write, 'w', "write"},
	{Delete, 'd', "delete"},
	{List, 'l', "list"},
}

const allPermissions = Read | Add | Create | Write | Delete | List

// ParsePermissions builds a set from words ("read") or letter strings ("racwdl").
// Whole words take precedence, so "add" always means the add permission.
func ParsePermissions(tokens ...string) (Permissions, error) {
	var perms Permissions
	for _, raw := range tokens {
		token := strings.ToLower(strings.TrimSpace(raw))
		if token == "" {
			continue
		}
		if p, ok := permissionFromWord(token); ok {
			perms |= p
			continue
		}
		for i := 0; i < len(token); i++ {
			p, ok := permissionFromLetter(token[i])
			if !ok {
				return 0, NewValidationError("permissions", raw, ErrInvalidPermission,
					fmt.Sprintf("unknown permission %q", string(token[i])))
			}
			perms |= p
		}
	}
	if perms == 0 {
		return 0, NewValidationError("permissions", tokens, ErrInvalidPermission, "at least one permission is required")
	}
	return perms, nil
}

// MustParsePermissions is like ParsePermissions but panics on error.
func MustParsePermissions(tokens ...string) Permissions {
	perms, err := ParsePermissions(tokens...)
	if err != nil {
		panic(err)
	}
	return perms
}

// Has reports whether every permission in q is part of p.
func (p Permissions) Has(q Permissions) bool {
	return q != 0 && p&q == q
}

// Valid reports whether p is non-empty and uses only known permissions.
func (p Permissions) Valid() bool {
	return p != 0 && p&^allPermissions == 0
}

// String returns the canonical letter form, e.g. "rwl".
func (p Permissions) String() string {
	var b strings.Builder
	for _, entry := range permissionOrder {
		if p&entry.perm != 0 {
			b.WriteByte(entry.letter)
		}
	}
	return b.String()
}

// Words returns the permission names in canonical order.
func (p Permissions) Words() []string {
	var words []string
	for _, entry := range permissionOrder {
		if p&entry.perm != 0 {
			words = append(words, entry.word)
		}
	}
	return words
}

func permissionFromWord(word string) (Permissions, bool) {
	for _, entry := range permissionOrder {
		if entry.word == word {
			return entry.perm, true
		}
	}
	return 0, false
}

func permissionFromLetter(letter byte) (Permissions, bool) {
	for _, entry := range permissionOrder {
		if entry.letter == letter {
			return entry.perm, true
		}
	}
	return 0, false
}
