package rfv

//IndexRange is the half interval [Begin, End) of a tree's instance index slice.
//The driver reorders instances in place while splitting, so the samples of a node
//are always a contiguous block of that slice.
type IndexRange struct {
	instances  []int
	Begin, End int
	pos        int
}

//NewIndexRange initializes a range over instances[begin:end].
func NewIndexRange(instances []int, begin, end int) IndexRange {
	return IndexRange{instances: instances, Begin: begin, End: end, pos: begin}
}

//Len is the number of samples in the range.
func (r IndexRange) Len() int {
	return r.End - r.Begin
}

//Indices returns the sample indices in the range. The slice aliases the driver's storage.
func (r IndexRange) Indices() []int {
	return r.instances[r.Begin:r.End]
}

//WeightSum adds up the weights of the samples in the range.
func (r IndexRange) WeightSum(weights []float64) float64 {
	s := 0.0
	for _, ind := range r.Indices() {
		s += weights[ind]
	}
	return s
}

//HasNext checks whether there are more samples in the iterator.
func (r *IndexRange) HasNext() bool {
	return r.pos < r.End
}

//GetNext returns the next sample index and moves the iterator forward.
func (r *IndexRange) GetNext() int {
	val := r.instances[r.pos]
	r.pos++
	return val
}

//Reset moves the iterator back to Begin.
func (r *IndexRange) Reset() {
	r.pos = r.Begin
}
