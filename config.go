package ising

// Config configures a hidden layer.
type Config struct {
	Dim  int    // number of hidden units
	Name string // used in error messages and reports

	// Weight initialization. Exactly one of IRange and SparseInit may
	// be set. IRange draws every entry from U(-IRange, IRange), then
	// zeroes it with probability 1-IncludeProb. SparseInit asks for an
	// explicitly sparse matrix with SparseInit nonzeros per unit,
	// scaled by SparseStdev.
	IRange      float64
	IncludeProb float64
	SparseInit  int
	SparseStdev float64

	InitBias float64 // constant initial bias

	// Learning rate multipliers handed to the optimizer. Zero means
	// "use the global rate".
	WLRScale float64
	BLRScale float64

	// MaxColNorm caps the L2 norm of each weight column as a
	// post-update projection. Zero disables the projection.
	MaxColNorm float64

	// BatchSize is the batch size topological inputs are validated
	// against before reformatting.
	BatchSize int
}

// DefaultConfig returns a config with the neutral knobs filled in.
// The caller still has to pick an init scheme.
func DefaultConfig(dim int, name string) Config {
	return Config{
		Dim:         dim,
		Name:        name,
		IncludeProb: 1,
		SparseStdev: 1,
		BatchSize:   1,
	}
}

func (conf Config) IsValid() bool {
	initOK := (conf.IRange > 0) != (conf.SparseInit > 0)
	return conf.Dim >= 1 &&
		conf.BatchSize >= 1 &&
		initOK &&
		conf.IncludeProb > 0 && conf.IncludeProb <= 1 &&
		conf.SparseStdev > 0 &&
		conf.MaxColNorm >= 0 &&
		conf.WLRScale >= 0 &&
		conf.BLRScale >= 0
}
