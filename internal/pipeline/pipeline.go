// -----------------------------------------------------------------------
// Stage Pipeline - Pure sequencing for the four analysis stages
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"iter"
	"maps"

	"github.com/ternarybob/censeo/internal/interfaces"
	"github.com/ternarybob/censeo/internal/models"
)

// Input is the shared context for one pipeline run: the truncated document
// text and the optional user query.
type Input struct {
	DocumentText string
	Query        string
}

// Outcome is the result of one stage: either an output or a failure. The
// pipeline itself never retries; a failure here means the runner (and
// whatever resilience policy wraps it) has given up on the stage.
type Outcome struct {
	Output *models.StageOutput
	Err    error
}

// Pipeline sequences the fixed stages over a stage runner. It owns only
// ordering and causal chaining; resilience policy belongs to the caller,
// which can wrap the runner with retry before constructing the pipeline.
type Pipeline struct {
	runner interfaces.StageRunner
}

// New creates a pipeline over the given stage runner.
func New(runner interfaces.StageRunner) *Pipeline {
	return &Pipeline{runner: runner}
}

// Run returns a lazy, ordered, finite sequence of stage outcomes, one per
// stage in the fixed pipeline order. Each stage receives the shared input
// plus the accumulated outputs of all prior stages. The sequence
// short-circuits after yielding the first failure: no later stage runs.
// A sequence is single-use; a fresh Run always starts at the first stage.
func (p *Pipeline) Run(ctx context.Context, in Input) iter.Seq2[models.StageName, Outcome] {
	return func(yield func(models.StageName, Outcome) bool) {
		prior := make(map[models.StageName]models.StageOutput, len(models.Stages()))

		for _, stage := range models.Stages() {
			input := models.StageInput{
				DocumentText: in.DocumentText,
				Query:        in.Query,
				Prior:        maps.Clone(prior),
			}

			output, err := p.runner.RunStage(ctx, stage, input)
			if err != nil {
				yield(stage.Name, Outcome{Err: err})
				return
			}

			prior[stage.Name] = *output

			if !yield(stage.Name, Outcome{Output: output}) {
				return
			}
		}
	}
}
