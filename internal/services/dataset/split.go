package dataset

import "fmt"

// Fold is a pair of half-open index ranges over time-ordered rows.
// Train always precedes Valid and starts at zero.
type Fold struct {
	Index      int
	TrainEnd   int // train = [0, TrainEnd)
	ValidStart int
	ValidEnd   int // valid = [ValidStart, ValidEnd)
}

// TrainLen is the number of rows the fold trains on.
func (f Fold) TrainLen() int { return f.TrainEnd }

// ValidLen is the number of rows the fold validates on.
func (f Fold) ValidLen() int { return f.ValidEnd - f.ValidStart }

// Split produces k expanding-window folds over n rows.
// Each validation block has n/(k+1) rows; the last block ends at n.
func Split(n, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("split: need at least 2 folds, got %d", k)
	}
	if n < k+1 {
		return nil, fmt.Errorf("split: cannot make %d folds from %d rows", k, n)
	}
	size := n / (k + 1)
	first := n - k*size

	folds := make([]Fold, k)
	for i := range folds {
		start := first + i*size
		folds[i] = Fold{
			Index:      i,
			TrainEnd:   start,
			ValidStart: start,
			ValidEnd:   start + size,
		}
	}
	return folds, nil
}
