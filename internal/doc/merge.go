package doc

import "fmt"

// Merge applies delta to the item's top-level fields and returns the result.
//
// Semantics are a shallow overwrite:
//   - payload keys in delta replace the current value wholesale (nested
//     objects and arrays are not deep-merged)
//   - keys absent from delta are preserved
//   - a null value removes the field
//   - envelope keys are ignored, except usage_count which may be set
//   - a type different from the item's type fails with ErrTypeMismatch
//
// The envelope of the returned item is otherwise unchanged; the caller
// stamps version, timestamps, head and hash.
func Merge(it Item, delta Object) (Item, error) {
	if t, ok := delta[KeyType]; ok {
		s, isStr := t.(String)
		if !isStr || ItemType(s) != it.Type {
			return Item{}, fmt.Errorf("%w: item %s is %s", ErrTypeMismatch, it.ID, it.Type)
		}
	}

	fields, err := it.PayloadFields()
	if err != nil {
		return Item{}, err
	}

	out := it
	for k, v := range delta {
		if k == KeyUsageCount {
			n, ok := v.(Int)
			if !ok || n < 0 {
				return Item{}, fmt.Errorf("%w: usage_count must be a non-negative integer", ErrInvalidPayload)
			}
			out.UsageCount = int64(n)
			continue
		}
		if IsEnvelopeKey(k) {
			continue
		}
		if _, isNull := v.(Null); isNull {
			delete(fields, k)
			continue
		}
		fields[k] = v
	}

	out.Payload, err = DecodePayload(it.Type, fields)
	if err != nil {
		return Item{}, err
	}
	return out, nil
}
