package app

import "errors"

// Config holds everything a single enspipe invocation needs: the subcommand,
// the shared ensemble and output settings, and the subcommand's own options.
type Config struct {
	Command string // "convert", "reduce", or "table"

	Ensemble     string
	InputFiles   string
	InputFormat  string
	OutputDir    string
	OutputFile   string
	Overwrite    bool
	PluginName   string
	PluginConfig string
	Workers      int
	Strict       bool
	LogLevel     string
	LogFormat    string

	// convert
	OutputFormat string

	// reduce
	Algorithm     string
	NumDim        int
	TimeAlign     int
	AutoCorrelate bool
	Binary        bool
	Scale         bool
	FieldVar      string
	XYOut         string
	XYHeader      string
	CSVOut        string
	CSVHeader     string
	Seed          int64

	// table
	Join          bool
	Concat        bool
	Expand        bool
	ConvertURIs   bool
	Create        bool
	TableInputs   []string
	IgnoreIndex   bool
	FillMissing   bool
	MissingValue  string
	NoIndex       bool
	ExpandHeader  string
	DropExpandCol bool
	URIColumns    []string
	URIRoot       string
	OriginHeader  string
	OriginNames   []string

	OutputHeaders        []string
	ExcludeOutputHeaders []string
	OutputIndexHeader    string
	OutputNoIndex        bool
}

// NewConfig validates the cross-field constraints the flag parser cannot
// express and returns the config ready for App construction.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Workers < 1 {
		return nil, errors.New("workers must be at least 1")
	}
	switch cfg.Command {
	case "convert":
		if cfg.Ensemble == "" {
			return nil, errors.New("convert requires --ensemble")
		}
		if cfg.InputFiles == "" {
			return nil, errors.New("convert requires --input-files")
		}
		if cfg.OutputFormat == "" {
			return nil, errors.New("convert requires --output-format")
		}
		if cfg.OutputDir == "" {
			return nil, errors.New("convert requires --output-dir")
		}
	case "reduce":
		if cfg.Ensemble == "" {
			return nil, errors.New("reduce requires --ensemble")
		}
		if cfg.InputFiles == "" {
			return nil, errors.New("reduce requires --input-files")
		}
	case "table":
		if err := checkTableMode(&cfg); err != nil {
			return nil, err
		}
		if cfg.OutputFile == "" {
			return nil, errors.New("table requires --output-file")
		}
	default:
		return nil, errors.New("internal: unknown command " + cfg.Command)
	}
	return &cfg, nil
}

func checkTableMode(cfg *Config) error {
	modes := 0
	for _, on := range []bool{cfg.Join, cfg.Concat, cfg.Expand, cfg.ConvertURIs, cfg.Create} {
		if on {
			modes++
		}
	}
	if modes != 1 {
		return errors.New("table requires exactly one of --join, --concat, --expand, --convert-uris, --create")
	}
	switch {
	case cfg.Join, cfg.Concat:
		if len(cfg.TableInputs) < 2 {
			return errors.New("table --join/--concat require at least two input CSV files")
		}
	case cfg.Expand:
		if len(cfg.TableInputs) != 1 {
			return errors.New("table --expand requires exactly one input CSV file")
		}
		if cfg.ExpandHeader == "" {
			return errors.New("table --expand requires --expand-header")
		}
	case cfg.ConvertURIs:
		if len(cfg.TableInputs) != 1 {
			return errors.New("table --convert-uris requires exactly one input CSV file")
		}
		if len(cfg.URIColumns) == 0 {
			return errors.New("table --convert-uris requires --uri-cols")
		}
		if cfg.URIRoot == "" {
			return errors.New("table --convert-uris requires --uri-root")
		}
	case cfg.Create:
		if cfg.Ensemble == "" {
			return errors.New("table --create requires --ensemble")
		}
		if cfg.InputFiles == "" {
			return errors.New("table --create requires --input-files")
		}
	}
	return nil
}
