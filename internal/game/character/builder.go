package character

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Name length limits, in runes.
const (
	MinNameLength = 4
	MaxNameLength = 14
)

// ErrInvalidName is wrapped by Build when a name breaks the naming rules.
var ErrInvalidName = errors.New("invalid character name")

// ValidateName checks a proposed character name. Names travel as single
// protocol tokens, so separators and control characters are rejected.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidName.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < MinNameLength || n > MaxNameLength {
		return fmt.Errorf("%w: length must be %d-%d, got %d", ErrInvalidName, MinNameLength, MaxNameLength, n)
	}
	if strings.ContainsAny(name, "^#/;") {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidName, name)
	}
	for _, r := range name {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidName, name)
		}
	}
	return nil
}

// Build constructs the record of a new level 1 character.
//
// Precondition: accountID must be > 0.
// Postcondition: Returns a Record ready for persistence, or a non-nil error.
func Build(accountID int64, name string, faction Faction) (Record, error) {
	if accountID <= 0 {
		return Record{}, fmt.Errorf("account id must be positive, got %d", accountID)
	}
	if err := ValidateName(name); err != nil {
		return Record{}, err
	}
	if faction < FactionNone || faction > FactionDemon {
		return Record{}, fmt.Errorf("unknown faction %d", faction)
	}
	return Record{
		AccountID: accountID,
		Name:      name,
		Level:     1,
		Faction:   faction,
		Direction: 2,
	}, nil
}
