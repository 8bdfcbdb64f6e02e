package settlement

import (
	"errors"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/trade-hub/trade-hub/internal/domain/fault"
	"github.com/trade-hub/trade-hub/internal/domain/proposal"
)

var ErrPolicyNotBoolean = errors.New("settlement policy did not evaluate to boolean")

// Policy is an operator supplied guard evaluated before any asset moves.
// Parameters: proposerCount, receiverCount, totalCount, proposer, receiver.
type Policy struct {
	source string
	expr   *govaluate.EvaluableExpression
}

// NewPolicy compiles expression. An empty expression allows every trade.
func NewPolicy(expression string) (*Policy, error) {
	src := strings.TrimSpace(expression)
	if src == "" {
		return &Policy{}, nil
	}
	expr, err := govaluate.NewEvaluableExpression(src)
	if err != nil {
		return nil, err
	}
	return &Policy{source: src, expr: expr}, nil
}

func (p *Policy) String() string {
	if p == nil {
		return ""
	}
	return p.source
}

// Check evaluates the policy against a settled proposal.
func (p *Policy) Check(prop *proposal.Proposal) error {
	if p == nil || p.expr == nil {
		return nil
	}
	result, err := p.expr.Evaluate(policyParams(prop))
	if err != nil {
		return fault.Validation("settlement policy could not be evaluated: %v", err)
	}
	allowed, ok := result.(bool)
	if !ok {
		return fault.Validation("%s", ErrPolicyNotBoolean.Error())
	}
	if !allowed {
		return fault.Validation("trade violates settlement policy: %s", p.source)
	}
	return nil
}

func policyParams(prop *proposal.Proposal) map[string]interface{} {
	proposerCount := float64(len(prop.Proposer.Assets))
	receiverCount := float64(len(prop.Receiver.Assets))
	return map[string]interface{}{
		"proposerCount": proposerCount,
		"receiverCount": receiverCount,
		"totalCount":    proposerCount + receiverCount,
		"proposer":      prop.Proposer.Party,
		"receiver":      prop.Receiver.Party,
	}
}
