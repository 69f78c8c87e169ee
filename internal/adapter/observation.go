package adapter

// Stage is the lifecycle phase an observation was emitted in.
type Stage string

// Lifecycle stages.
const (
	StageTrain    Stage = "train"
	StageValidate Stage = "val"
	StageTest     Stage = "test"
	StagePredict  Stage = "predict"
)

// Observation is one named scalar emitted by a step.
type Observation struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Stage     Stage   `json:"stage"`
	BatchIdx  int     `json:"batch_idx"`
	BatchSize int     `json:"batch_size"`
}

// Logger receives observations. Implementations must be safe for the
// caller's concurrency; the adapter itself calls Log sequentially.
type Logger interface {
	Log(obs Observation)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(obs Observation)

// Log calls f(obs).
func (f LoggerFunc) Log(obs Observation) {
	f(obs)
}

type discard struct{}

func (discard) Log(Observation) {}
