package circuit

// Reduction is a reduced topology plus the index maps between the original
// element positions and the reduced ones.
type Reduction[T any] struct {
	Reduced         T
	OriginToReduced []int   // original position -> reduced position
	ReducedToOrigin [][]int // reduced position -> original positions, ascending
}

// reduce merges elements first-fit in original order. prepare builds the
// representative placed for an unmatched element, equivalent tests an element
// against a placed representative, and merge folds the element's multiplicity
// into the representative.
func reduce[E any](
	elements []E,
	prepare func(E) E,
	equivalent func(rep, elem E) bool,
	merge func(rep *E, elem E),
) ([]E, []int, [][]int) {
	reduced := make([]E, 0, len(elements))
	originToReduced := make([]int, len(elements))
	reducedToOrigin := make([][]int, 0, len(elements))

	for i, elem := range elements {
		elem = prepare(elem)

		j := -1
		for k := range reduced {
			if equivalent(reduced[k], elem) {
				j = k
				break
			}
		}

		if j >= 0 {
			merge(&reduced[j], elem)
			reducedToOrigin[j] = append(reducedToOrigin[j], i)
			originToReduced[i] = j
			continue
		}

		originToReduced[i] = len(reduced)
		reduced = append(reduced, elem)
		reducedToOrigin = append(reducedToOrigin, []int{i})
	}

	return reduced, originToReduced, reducedToOrigin
}
