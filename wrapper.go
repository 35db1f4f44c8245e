package horunner

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// CountingEvaluator wraps an Evaluator, logging every call with its
// parameters and counting how many evaluations were started. It is safe for
// concurrent use.
type CountingEvaluator struct {
	next   Evaluator
	logger logrus.FieldLogger
	count  atomic.Int64
}

// Evaluate implements Evaluator.
func (c *CountingEvaluator) Evaluate(ctx context.Context, params Params) (Result, error) {
	n := c.count.Add(1) - 1

	c.logger.WithFields(logrus.Fields{
		"evaluation": n,
		"params":     FormatParams(params),
	}).Debug("evaluating")

	return c.next.Evaluate(ctx, params)
}

// Count returns how many evaluations were started.
func (c *CountingEvaluator) Count() int64 {
	return c.count.Load()
}

// NewCountingEvaluator wraps next. A nil logger means the logrus standard
// logger.
func NewCountingEvaluator(next Evaluator, logger logrus.FieldLogger) *CountingEvaluator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &CountingEvaluator{next: next, logger: logger}
}
