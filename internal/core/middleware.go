package core

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"mfestate/pkg/domain"
)

// runMiddleware threads ev through chain in order and calls commit when the
// last middleware calls next. A middleware that never calls next vetoes the
// write. next is idempotent per middleware.
func (s *Store) runMiddleware(chain []domain.Middleware, ev domain.ChangeEvent, commit func()) {
	var step func(i int)
	step = func(i int) {
		if i == len(chain) {
			commit()
			return
		}
		var once sync.Once
		s.invokeMiddleware(chain[i], ev, func() {
			once.Do(func() { step(i + 1) })
		})
	}
	step(0)
}

func (s *Store) invokeMiddleware(mw domain.Middleware, ev domain.ChangeEvent, next func()) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Errorf("middleware panicked on %q (source %q): %v", ev.Key, ev.Source, rec)
		}
	}()
	mw(ev, next)
}

// LoggingMiddleware logs every write attempt and, when the rest of the chain
// commits synchronously, a confirmation. Install it with Use before other
// middleware to see attempts that later middleware vetoes.
func (s *Store) LoggingMiddleware() domain.Middleware {
	return func(ev domain.ChangeEvent, next func()) {
		s.logger.Debugf("set %q attempted (source %q)", ev.Key, ev.Source)
		before := s.Meta().Version
		next()
		if s.Meta().Version != before {
			s.logger.Debugf("set %q committed", ev.Key)
		}
	}
}

type guardEnv struct {
	Key           string `expr:"key"`
	Value         any    `expr:"value"`
	PreviousValue any    `expr:"previousValue"`
	Source        string `expr:"source"`
}

// ExprGuard compiles rules with github.com/expr-lang/expr and vetoes any
// write for which a rule does not evaluate to true. Rules see key, value,
// previousValue and source. An evaluation error also vetoes the write.
//
//	ExprGuard(logger, `not (key startsWith "locked:")`, `source != "anonymous"`)
func ExprGuard(logger Logger, rules ...string) (domain.Middleware, error) {
	if logger == nil {
		logger = GlogLogger{}
	}
	programs := make([]*vm.Program, 0, len(rules))
	for _, rule := range rules {
		program, err := expr.Compile(rule, expr.Env(guardEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile guard %q: %w", rule, err)
		}
		programs = append(programs, program)
	}
	return func(ev domain.ChangeEvent, next func()) {
		env := guardEnv{Key: ev.Key, Value: ev.Value, PreviousValue: ev.PreviousValue, Source: ev.Source}
		for i, program := range programs {
			out, err := expr.Run(program, env)
			if err != nil {
				logger.Warnf("guard %q failed on %q: %v", rules[i], ev.Key, err)
				return
			}
			if ok, _ := out.(bool); !ok {
				logger.Debugf("guard %q vetoed %q", rules[i], ev.Key)
				return
			}
		}
		next()
	}, nil
}
