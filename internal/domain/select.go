package domain

import "fmt"

// Selector identifies a record within a forecast file by parameter and,
// optionally, level.
type Selector struct {
	ParameterID int
	Level       *int
}

// Param selects by parameter identifier alone.
func Param(id int) Selector {
	return Selector{ParameterID: id}
}

// ParamAtLevel selects by parameter identifier and level value.
func ParamAtLevel(id, level int) Selector {
	return Selector{ParameterID: id, Level: &level}
}

// Matches reports whether r satisfies the selector.
func (s Selector) Matches(r Record) bool {
	if r.ParameterID != s.ParameterID {
		return false
	}
	return s.Level == nil || r.Level == *s.Level
}

func (s Selector) String() string {
	if s.Level != nil {
		return fmt.Sprintf("parameter %d at level %d", s.ParameterID, *s.Level)
	}
	return fmt.Sprintf("parameter %d", s.ParameterID)
}

// Select returns the first record matching sel, in file order.
func Select(records []Record, sel Selector) (Record, error) {
	for _, r := range records {
		if sel.Matches(r) {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%s: %w", sel, ErrRecordNotFound)
}
