package deferred

// sequence runs step(0), step(1), ... one at a time, starting each step only
// after the previous one fulfilled. visit sees every fulfilled result and may
// stop the walk by returning false. finish is called exactly once, with the
// first rejection or nil.
//
// Steps that settle synchronously are looped over rather than chained, so a
// long run of already-settled steps does not grow the stack.
func sequence[R any](n int, step func(i int) *Value[R], visit func(i int, v R) bool, finish func(err error)) {
	var run func(start int)
	run = func(start int) {
		for i := start; i < n; i++ {
			idx := i
			cur := invoke(func() *Value[R] { return step(idx) })
			v, err, settled := cur.peek()
			if !settled {
				cur.onSettled(func() {
					v, err, _ := cur.peek()
					if err != nil {
						finish(err)
						return
					}
					if !visit(idx, v) {
						finish(nil)
						return
					}
					run(idx + 1)
				})
				return
			}
			if err != nil {
				finish(err)
				return
			}
			if !visit(idx, v) {
				finish(nil)
				return
			}
		}
		finish(nil)
	}
	run(0)
}

// Map applies fn to every item in order. Each call starts once the previous
// result has fulfilled. Results keep the input order. The first rejection
// rejects the whole Map and no further items are visited.
func Map[E, R any](items []E, fn func(E) *Value[R]) *Value[[]R] {
	out := New[[]R]()
	results := make([]R, 0, len(items))
	sequence(len(items),
		func(i int) *Value[R] { return fn(items[i]) },
		func(_ int, v R) bool {
			results = append(results, v)
			return true
		},
		func(err error) {
			if err != nil {
				out.Reject(err)
				return
			}
			out.Resolve(results)
		})
	return out
}

// ForEach is Map for steps without a result.
func ForEach[E any](items []E, fn func(E) *Value[struct{}]) *Value[struct{}] {
	return Discard(Map(items, fn))
}

// Waterfall runs steps one after another, stopping at the first rejection.
func Waterfall(steps ...func() *Value[struct{}]) *Value[struct{}] {
	return ForEach(steps, func(step func() *Value[struct{}]) *Value[struct{}] {
		return step()
	})
}

// Or evaluates predicates in order and fulfills with true at the first one
// that fulfills with true. Later predicates are not evaluated.
func Or(preds ...func() *Value[bool]) *Value[bool] {
	out := New[bool]()
	found := false
	sequence(len(preds),
		func(i int) *Value[bool] { return preds[i]() },
		func(_ int, v bool) bool {
			found = v
			return !v
		},
		func(err error) {
			if err != nil {
				out.Reject(err)
				return
			}
			out.Resolve(found)
		})
	return out
}
