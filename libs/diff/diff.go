// Package diff wraps r3labs/diff with comparers for the value types used
// in expense payloads. uuid.UUID and decimal.Decimal are compared as whole
// values instead of being walked field by field.
package diff

import (
	"reflect"

	"github.com/google/uuid"
	odiff "github.com/r3labs/diff/v3"
	"github.com/shopspring/decimal"
)

func GetCustomDiffer() *odiff.Differ {
	ret, err := odiff.NewDiffer(odiff.CustomValueDiffers(&UUIDComparer{}, &DecimalComparer{}))
	if err != nil {
		panic(err)
	}
	return ret
}

// Changed reports whether the two values differ. It is used to skip event
// publishing for no-op updates.
func Changed(a, b interface{}) (bool, error) {
	changelog, err := GetCustomDiffer().Diff(a, b)
	if err != nil {
		return false, err
	}
	return len(changelog) > 0, nil
}

type UUIDComparer struct{}

var (
	uuidType    = reflect.TypeOf(uuid.UUID{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// Match check is field match this custom type
func (c UUIDComparer) Match(a, b reflect.Value) bool {
	return matchType(a, b, uuidType)
}

// Diff check is diff or not
func (c UUIDComparer) Diff(_ odiff.DiffType, _ odiff.DiffFunc, cl *odiff.Changelog, path []string, a reflect.Value, b reflect.Value, _ interface{}) error {
	valA := reflect.Indirect(a)
	valB := reflect.Indirect(b)

	// a nil pointer on one side only is an update
	if !valA.IsValid() || !valB.IsValid() {
		if valA.IsValid() != valB.IsValid() {
			cl.Add(odiff.UPDATE, path, a.Interface(), b.Interface())
		}
		return nil
	}

	u1 := valA.Interface().(uuid.UUID)
	u2 := valB.Interface().(uuid.UUID)

	// compare as one value, not byte by byte
	if u1 != u2 {
		cl.Add(odiff.UPDATE, path, u1, u2)
	}
	return nil
}

// InsertParentDiffer do something with parent,
// uuid is leaf, so do not thing
func (c UUIDComparer) InsertParentDiffer(_ func(path []string, a reflect.Value, b reflect.Value, p interface{}) error) {
	// do not thing
}

// DecimalComparer compares decimals by numeric value, so 10 and 10.00 are
// equal even though their internal representations differ.
type DecimalComparer struct{}

func (c DecimalComparer) Match(a, b reflect.Value) bool {
	return matchType(a, b, decimalType)
}

func (c DecimalComparer) Diff(_ odiff.DiffType, _ odiff.DiffFunc, cl *odiff.Changelog, path []string, a reflect.Value, b reflect.Value, _ interface{}) error {
	valA := reflect.Indirect(a)
	valB := reflect.Indirect(b)

	if !valA.IsValid() || !valB.IsValid() {
		if valA.IsValid() != valB.IsValid() {
			cl.Add(odiff.UPDATE, path, a.Interface(), b.Interface())
		}
		return nil
	}

	d1 := valA.Interface().(decimal.Decimal)
	d2 := valB.Interface().(decimal.Decimal)

	if !d1.Equal(d2) {
		cl.Add(odiff.UPDATE, path, d1, d2)
	}
	return nil
}

func (c DecimalComparer) InsertParentDiffer(_ func(path []string, a reflect.Value, b reflect.Value, p interface{}) error) {
	// do not thing
}

func matchType(a, b reflect.Value, t reflect.Type) bool {
	aok := a.Kind() == t.Kind() && a.Type() == t
	bok := b.Kind() == t.Kind() && b.Type() == t
	return (aok && bok) || (a.Kind() == reflect.Invalid && bok) || (b.Kind() == reflect.Invalid && aok)
}
