package world

// Option keys recognized by the accelerator build.
const (
	OptBuilder         = "bvh.builder"               // string: "sah" selects the SAH builder
	OptUseSplits       = "bvh.sah.use_splits"        // float > 0 enables primitive splitting
	OptMaxSplitDepth   = "bvh.sah.max_split_depth"   // float
	OptMinOverlap      = "bvh.sah.min_overlap"       // float
	OptTraversalCost   = "bvh.sah.traversal_cost"    // float
	OptExtraNodeBudget = "bvh.sah.extra_node_budget" // float
	OptNumBins         = "bvh.sah.num_bins"          // float
)

// Option is a typed option value: either a float or a string.
type Option struct {
	fval float32
	sval string
	str  bool
}

// Float value of the option. String options report zero.
func (o *Option) AsFloat() float32 {
	if o.str {
		return 0
	}
	return o.fval
}

// String value of the option. Float options report "".
func (o *Option) AsString() string {
	return o.sval
}

// OptionSet is a string-keyed set of typed option values.
type OptionSet map[string]*Option

func NewOptionSet() OptionSet {
	return make(OptionSet)
}

// Set a float option.
func (s OptionSet) SetFloat(name string, value float32) {
	s[name] = &Option{fval: value}
}

// Set a string option.
func (s OptionSet) SetString(name string, value string) {
	s[name] = &Option{sval: value, str: true}
}

// Look up an option. Returns nil when the option is not set.
func (s OptionSet) Get(name string) *Option {
	return s[name]
}
