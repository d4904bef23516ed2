package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"ticguide/internal/crossmatch"
	"ticguide/internal/mast"
	"ticguide/internal/observation"
	"ticguide/internal/report"
	"ticguide/internal/tablestore"
	"ticguide/internal/tablesync"
	"ticguide/internal/targets"
	"ticguide/lib/configutil"
	"time"

	"github.com/spf13/pflag"
)

// ConfigName is the configuration file looked for from the working
// directory up when --config is not given.
const ConfigName = "ticguide.json5"

const (
	SelectedFile = "selected_tics.csv"
	TotalsFile   = "all_tics.csv"
)

// ErrNoCadences is returned when the cadence list is empty.
var ErrNoCadences = errors.New("no cadences selected, use --cadence short, --cadence fast or both")

var ErrLineWidthTooNarrow = fmt.Errorf("line width must be at least %d", report.MinLineWidth)

// Config is the contents of ticguide.json5, every field is optional and
// flags take priority over it.
type Config struct {
	IndexURL            string   `json:"index_url"`
	FetchTimeoutSeconds int      `json:"fetch_timeout_seconds"`
	RequestsPerSecond   float64  `json:"requests_per_second"`
	UserAgent           string   `json:"user_agent"`
	LineWidth           int      `json:"line_width"`
	OnError             string   `json:"on_error"`
	Store               string   `json:"store"`
	Cadences            []string `json:"cadences"`
	// Timezone is the location cron specs of the watch command are read in.
	Timezone string `json:"timezone"`
}

func defaultConfig() Config {
	return Config{
		IndexURL:            mast.DefaultIndexURL,
		FetchTimeoutSeconds: 60,
		LineWidth:           report.DefaultLineWidth,
		OnError:             tablesync.PolicySkip.String(),
		Store:               string(tablestore.KindCSV),
		Cadences:            []string{"short", "fast"},
	}
}

// LoadConfig reads the configuration at path, or looks for ticguide.json5 if
// path is empty. A missing configuration is not an error, unless it was
// asked for explicitly.
func LoadConfig(path string) (Config, error) {
	out := defaultConfig()

	var (
		read Config
		err  error
	)
	if path != "" {
		read, err = configutil.ReadConfig[Config](path)
	} else {
		read, err = configutil.ReadRecursively[Config](ConfigName)
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
	}
	if err != nil {
		return out, fmt.Errorf("read config: %w", err)
	}

	if read.IndexURL != "" {
		out.IndexURL = read.IndexURL
	}
	if read.FetchTimeoutSeconds > 0 {
		out.FetchTimeoutSeconds = read.FetchTimeoutSeconds
	}
	if read.RequestsPerSecond != 0 {
		out.RequestsPerSecond = read.RequestsPerSecond
	}
	if read.UserAgent != "" {
		out.UserAgent = read.UserAgent
	}
	if read.LineWidth > 0 {
		out.LineWidth = read.LineWidth
	}
	if read.OnError != "" {
		out.OnError = read.OnError
	}
	if read.Store != "" {
		out.Store = read.Store
	}
	if len(read.Cadences) > 0 {
		out.Cadences = read.Cadences
	}
	if read.Timezone != "" {
		out.Timezone = read.Timezone
	}
	return out, nil
}

// flagValues are the raw values of the command line flags.
type flagValues struct {
	input      string
	stars      []uint
	output     string
	path       string
	cadences   []string
	store      string
	noSave     bool
	dryRun     bool
	quiet      bool
	noProgress bool
	download   bool
	table      bool
	total      bool
	order      string
	lineWidth  int
	onError    string
	config     string
	debug      bool
}

// Settings is everything a run needs, resolved from flags and config.
type Settings struct {
	Input      string
	Stars      []observation.TargetID
	Dir        string
	Output     string
	Cadences   []observation.Cadence
	Store      tablestore.Kind
	NoSave     bool
	DryRun     bool
	Quiet      bool
	NoProgress bool
	Download   bool
	Table      bool
	Total      bool
	Order      crossmatch.Order
	LineWidth  int
	Policy     tablesync.FailurePolicy
	Debug      bool
	Timezone   string
	Client     mast.ClientOptions
}

// TablePath is where the observation table is kept.
func (s Settings) TablePath() string {
	return s.resolve(s.Output)
}

// InputPath is the input list as given if it exists, otherwise relative to
// the working path.
func (s Settings) InputPath() string {
	if s.Input == "" {
		return ""
	}
	if _, err := os.Stat(s.Input); err == nil {
		return s.Input
	}
	return s.resolve(s.Input)
}

func (s Settings) SelectedPath() string {
	return s.resolve(SelectedFile)
}

func (s Settings) TotalsPath() string {
	return s.resolve(TotalsFile)
}

func (s Settings) resolve(name string) string {
	if filepath.IsAbs(name) || s.Dir == "" {
		return name
	}
	return filepath.Join(s.Dir, name)
}

// resolveSettings applies the flags that were set over the config.
func resolveSettings(flags *pflag.FlagSet, values flagValues, config Config) (Settings, error) {
	cadenceNames := config.Cadences
	if flags.Changed("cadence") {
		cadenceNames = values.cadences
	}
	cadences, err := observation.ParseCadences(cadenceNames)
	if err != nil {
		return Settings{}, err
	}
	if len(cadences) == 0 {
		return Settings{}, ErrNoCadences
	}

	storeName := config.Store
	if flags.Changed("store") {
		storeName = values.store
	}
	store := tablestore.Kind(storeName)
	if store != tablestore.KindCSV && store != tablestore.KindSQLite {
		return Settings{}, fmt.Errorf("unknown store '%s', expected one of: csv, sqlite", storeName)
	}

	policyName := config.OnError
	if flags.Changed("on-error") {
		policyName = values.onError
	}
	policy, err := tablesync.ParsePolicy(policyName)
	if err != nil {
		return Settings{}, err
	}

	order, err := crossmatch.ParseOrder(values.order)
	if err != nil {
		return Settings{}, err
	}

	lineWidth := config.LineWidth
	if flags.Changed("line-width") {
		lineWidth = values.lineWidth
	}
	if lineWidth < report.MinLineWidth {
		return Settings{}, fmt.Errorf("%w, got %d", ErrLineWidthTooNarrow, lineWidth)
	}

	stars := make([]observation.TargetID, len(values.stars))
	for i, s := range values.stars {
		if s == 0 {
			return Settings{}, fmt.Errorf("%w: --star 0", targets.ErrInvalidTargetID)
		}
		stars[i] = observation.TargetID(s)
	}

	return Settings{
		Input:      values.input,
		Stars:      stars,
		Dir:        values.path,
		Output:     values.output,
		Cadences:   cadences,
		Store:      store,
		NoSave:     values.noSave,
		DryRun:     values.dryRun,
		Quiet:      values.quiet,
		NoProgress: values.noProgress,
		Download:   values.download,
		Table:      values.table,
		Total:      values.total,
		Order:      order,
		LineWidth:  lineWidth,
		Policy:     policy,
		Debug:      values.debug,
		Timezone:   config.Timezone,
		Client: mast.ClientOptions{
			IndexURL:          config.IndexURL,
			Timeout:           time.Duration(config.FetchTimeoutSeconds) * time.Second,
			RequestsPerSecond: config.RequestsPerSecond,
			UserAgent:         config.UserAgent,
		},
	}, nil
}
