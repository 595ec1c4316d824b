package engine

import "github.com/RareSkills/icp-for-evm-sub000/internal/ir"

// execSegment is a contiguous run of ops ending either at a suspending
// call op or at the end of the method.
type execSegment struct {
	// Ops are the non-suspending instructions of the span.
	Ops []ir.Op
	// Call is the trailing suspending op, nil for the final segment.
	Call *ir.Op
	// Index is the segment's position in the 2n+1 numbering: exec
	// segments take even indexes, the await spans between them odd ones.
	Index int
}

// segmentPlan is a method body partitioned at its suspension points.
type segmentPlan struct {
	Exec []execSegment
	// Total counts every span including awaits: 2n+1 for n suspending
	// ops, 1 for a fully synchronous method.
	Total int
}

// planSegments partitions ops at each suspending op. A method with no
// calls yields exactly one segment and executes atomically; with n calls
// it yields n+1 exec segments separated by n await spans.
func planSegments(ops []ir.Op) segmentPlan {
	var plan segmentPlan
	start := 0
	for i := range ops {
		if !ops[i].Suspending() {
			continue
		}
		call := ops[i]
		plan.Exec = append(plan.Exec, execSegment{
			Ops:   ops[start:i],
			Call:  &call,
			Index: 2 * len(plan.Exec),
		})
		start = i + 1
	}
	plan.Exec = append(plan.Exec, execSegment{
		Ops:   ops[start:],
		Index: 2 * len(plan.Exec),
	})
	plan.Total = 2*len(plan.Exec) - 1
	return plan
}
