// Command staticlint runs the project's static analysis suite: a set of
// go/analysis passes, third-party analyzers, the noosexit analyzer and
// staticcheck checks.
//
// Staticcheck checks are selected by config.json placed next to the binary:
//
//	{"staticcheck": ["SA1000", "SA4006", "S1002"]}
//
// Without the file every SA check is enabled.
package main

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gordonklaus/ineffassign/pkg/ineffassign"
	"github.com/gostaticanalysis/nilerr"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/errorsas"
	"golang.org/x/tools/go/analysis/passes/httpresponse"
	"golang.org/x/tools/go/analysis/passes/loopclosure"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/shadow"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/unmarshal"
	"golang.org/x/tools/go/analysis/passes/unreachable"
	"honnef.co/go/tools/analysis/lint"
	"honnef.co/go/tools/simple"
	"honnef.co/go/tools/staticcheck"

	"github.com/patric-chuzhbe/shortlink/cmd/staticlint/noosexit"
)

const configFileName = `config.json`

type configData struct {
	Staticcheck []string `json:"staticcheck"`
}

func main() {
	enabled, err := loadEnabledChecks()
	if err != nil {
		log.Fatal(err)
	}

	checks := []*analysis.Analyzer{
		copylock.Analyzer,
		errorsas.Analyzer,
		httpresponse.Analyzer,
		loopclosure.Analyzer,
		lostcancel.Analyzer,
		printf.Analyzer,
		shadow.Analyzer,
		structtag.Analyzer,
		unmarshal.Analyzer,
		unreachable.Analyzer,

		ineffassign.Analyzer,
		nilerr.Analyzer,

		noosexit.Analyzer,
	}

	checks = append(checks, selectAnalyzers(staticcheck.Analyzers, enabled)...)
	checks = append(checks, selectAnalyzers(simple.Analyzers, enabled)...)

	multichecker.Main(checks...)
}

// loadEnabledChecks returns nil when config.json is absent, which enables every SA check.
func loadEnabledChecks() (map[string]bool, error) {
	appfile, err := os.Executable()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(appfile), configFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg configData
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	enabled := make(map[string]bool, len(cfg.Staticcheck))
	for _, name := range cfg.Staticcheck {
		enabled[strings.ToUpper(strings.TrimSpace(name))] = true
	}

	return enabled, nil
}

func selectAnalyzers(analyzers []*lint.Analyzer, enabled map[string]bool) []*analysis.Analyzer {
	var selected []*analysis.Analyzer
	for _, a := range analyzers {
		name := a.Analyzer.Name
		if (enabled == nil && strings.HasPrefix(name, "SA")) || enabled[name] {
			selected = append(selected, a.Analyzer)
		}
	}

	return selected
}
