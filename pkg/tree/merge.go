package tree

// Merge folds src into dst.
//
// Nested mappings are merged key by key. With clobber unset, sequences are
// extended with the items of src that dst does not already hold; with
// clobber set, src's sequence replaces dst's. Scalars from src always win.
// Values taken from src are cloned.
func Merge(dst, src *Mapping, clobber bool) {
	for _, k := range src.Keys() {
		sv := src.vals[k]
		dv, exists := dst.Get(k)
		switch s := sv.(type) {
		case *Mapping:
			if d, ok := dv.(*Mapping); ok && exists {
				Merge(d, s, clobber)
				continue
			}
			dst.Set(k, s.Clone())
		case Sequence:
			d, ok := dv.(Sequence)
			if !exists || !ok || clobber {
				dst.Set(k, Clone(s))
				continue
			}
			merged := Clone(d).(Sequence)
			for _, item := range s {
				if !contains(merged, item) {
					merged = append(merged, Clone(item))
				}
			}
			dst.Set(k, merged)
		default:
			dst.Set(k, Clone(sv))
		}
	}
}

func contains(seq Sequence, v Value) bool {
	for _, item := range seq {
		if Equal(item, v) {
			return true
		}
	}
	return false
}
