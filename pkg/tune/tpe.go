package tune

import (
	"context"
	"strconv"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"churn/pkg/model"
)

// invalidScore is reported to the sampler for a combination with no usable fold.
const invalidScore = -1e9

// zapLogger adapts zap to goptuna's logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Debug(msg string, fields ...interface{}) { l.s.Debugw(msg, fields...) }
func (l zapLogger) Info(msg string, fields ...interface{})  { l.s.Debugw(msg, fields...) }
func (l zapLogger) Warn(msg string, fields ...interface{})  { l.s.Warnw(msg, fields...) }
func (l zapLogger) Error(msg string, fields ...interface{}) { l.s.Errorw(msg, fields...) }

func choiceLabels(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

// searchTPE lets goptuna's TPE sampler propose Iterations combinations one
// after another. Each parameter is a categorical over its choice indices.
// A repeated proposal reuses the earlier score instead of refitting.
func searchTPE(ctx context.Context, g *grid, cv *crossValidator, cfg Config, log *zap.Logger) ([]Trial, error) {
	study, err := goptuna.CreateStudy(
		"churn-"+cv.fam.Name,
		goptuna.StudyOptionSampler(tpe.NewSampler(tpe.SamplerOptionSeed(cfg.Seed))),
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMaximize),
		goptuna.StudyOptionLogger(zapLogger{log.Sugar()}),
	)
	if err != nil {
		return nil, errors.Trace(err)
	}

	var trials []Trial
	seen := make(map[string]int)
	objective := func(trial goptuna.Trial) (float64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		params := make(model.Params, len(g.keys))
		for k, key := range g.keys {
			s, err := trial.SuggestCategorical(key, choiceLabels(len(g.choices[k])))
			if err != nil {
				return 0, errors.Trace(err)
			}
			i, err := strconv.Atoi(s)
			if err != nil {
				return 0, errors.Trace(err)
			}
			params[key] = g.choices[k][i]
		}
		if i, ok := seen[params.String()]; ok {
			return objectiveValue(trials[i]), nil
		}
		res, err := cv.run(ctx, []model.Params{params}, len(trials))
		if err != nil {
			return 0, err
		}
		seen[params.String()] = len(trials)
		trials = append(trials, res[0])
		return objectiveValue(res[0]), nil
	}
	if err := study.Optimize(objective, cfg.Iterations); err != nil {
		return nil, errors.Annotate(err, "tpe search")
	}
	return trials, nil
}

func objectiveValue(t Trial) float64 {
	if !t.Valid {
		return invalidScore
	}
	return t.Mean
}
