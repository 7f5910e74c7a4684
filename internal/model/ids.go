package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// callIDNamespace is the fixed UUID namespace under which deterministic
// call ids are derived. Changing it invalidates every persisted graph.
var callIDNamespace = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")

// ComputeCallID derives the deterministic identity of a stubbed call from
// its stubbing context: the defining function's name, the rendered argument
// values bound into it, and the effective present time. Structurally
// identical sub-evaluations therefore collapse onto one graph node, which
// is the memoization contract that bounds graph size for recursive
// definitions.
func ComputeCallID(functionName string, encodedArgs []string, presentTime *time.Time) uuid.UUID {
	var b strings.Builder
	b.WriteString(functionName)
	b.WriteByte('(')
	b.WriteString(strings.Join(encodedArgs, ","))
	b.WriteByte(')')
	if presentTime != nil {
		b.WriteByte('@')
		b.WriteString(presentTime.UTC().Format(time.RFC3339))
	}
	return uuid.NewSHA1(callIDNamespace, []byte(b.String()))
}
