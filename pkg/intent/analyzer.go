// Package intent classifies a normalized query into the resource, action,
// and execution strategy the planner needs. A pure regex pass handles the
// common phrasings without an LM call; anything it is unsure about goes to
// a single-shot LM prompt that answers in JSON.
package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/potto-labs/potto/pkg/gateway"
	"github.com/potto-labs/potto/pkg/models"
	"github.com/potto-labs/potto/pkg/prompt"
)

// stageName keys the analyzer's model tier and timing entry.
const stageName = "intent_analyzer"

// actionPatterns map verb phrasings to canonical actions, checked in
// order; the first match wins.
var actionPatterns = []struct {
	re     *regexp.Regexp
	action string
	mutate bool
}{
	{regexp.MustCompile(`(?i)\b(list|show|display|get all|what|which|view|find)\b`), "list", false},
	{regexp.MustCompile(`(?i)\b(create|make|add|provision|set up)\b`), "create", true},
	{regexp.MustCompile(`(?i)\b(launch|spin up|boot)\b`), "launch", true},
	{regexp.MustCompile(`(?i)\b(delete|remove|destroy|terminate|drop)\b`), "delete", true},
	{regexp.MustCompile(`(?i)\b(stop|shut ?down|halt)\b`), "stop", true},
	{regexp.MustCompile(`(?i)\b(start|resume|bring up)\b`), "start", true},
	{regexp.MustCompile(`(?i)\b(update|change|modify|resize|rename)\b`), "update", true},
	{regexp.MustCompile(`(?i)\b(describe|details? (of|for)|inspect)\b`), "get", false},
}

// resourcePatterns map noun phrasings to (resource, service).
var resourcePatterns = []struct {
	re       *regexp.Regexp
	resource string
	service  string
}{
	{regexp.MustCompile(`(?i)\b(instances?|vms?|virtual machines?|servers?|computes?)\b`), "instance", "compute"},
	{regexp.MustCompile(`(?i)\bbuckets?\b`), "bucket", "objectstorage"},
	{regexp.MustCompile(`(?i)\b(volumes?|block storage)\b`), "volume", "blockstorage"},
	{regexp.MustCompile(`(?i)\b(vcns?|virtual cloud networks?|networks?)\b`), "vcn", "virtualnetwork"},
	{regexp.MustCompile(`(?i)\bsubnets?\b`), "subnet", "virtualnetwork"},
	{regexp.MustCompile(`(?i)\b(load ?balancers?|lbs?)\b`), "load_balancer", "loadbalancer"},
	{regexp.MustCompile(`(?i)\bcompartments?\b`), "compartment", "identity"},
	{regexp.MustCompile(`(?i)\busers?\b`), "user", "identity"},
	{regexp.MustCompile(`(?i)\b(databases?|db systems?)\b`), "database", "database"},
}

// stateCues recognize lifecycle-state predicates inside list queries.
var stateCues = []struct {
	re    *regexp.Regexp
	value string
}{
	{regexp.MustCompile(`(?i)\brunning\b`), "RUNNING"},
	{regexp.MustCompile(`(?i)\bstopped\b`), "STOPPED"},
	{regexp.MustCompile(`(?i)\bterminated\b`), "TERMINATED"},
	{regexp.MustCompile(`(?i)\bavailable\b`), "AVAILABLE"},
	{regexp.MustCompile(`(?i)\bprovisioning\b`), "PROVISIONING"},
}

// Analyzer is the pattern + LM hybrid classifier.
type Analyzer struct {
	llm     gateway.Caller
	prompts *prompt.Manager
}

// NewAnalyzer wires the analyzer.
func NewAnalyzer(llm gateway.Caller, prompts *prompt.Manager) *Analyzer {
	return &Analyzer{llm: llm, prompts: prompts}
}

// Analyze classifies the query. The regex pass answers immediately when
// both an action and a resource are recognized; otherwise the LM decides.
// A failed LM call yields a low-confidence UNKNOWN intent rather than an
// error, because general chat is a valid outcome.
func (a *Analyzer) Analyze(ctx context.Context, st *models.TurnState, query string) *models.Intent {
	if intent, ok := patternAnalyze(query); ok {
		return intent
	}
	return a.llmAnalyze(ctx, st, query)
}

// patternAnalyze is the pure pass.
func patternAnalyze(query string) (*models.Intent, bool) {
	var action string
	var mutating bool
	for _, p := range actionPatterns {
		if p.re.MatchString(query) {
			action = p.action
			mutating = p.mutate
			break
		}
	}
	if action == "" {
		return nil, false
	}

	var resource, service string
	for _, p := range resourcePatterns {
		if p.re.MatchString(query) {
			resource = p.resource
			service = p.service
			break
		}
	}
	if resource == "" {
		return nil, false
	}

	intent := &models.Intent{
		PrimaryResource: resource,
		Action:          action,
		Service:         service,
		IsMutating:      mutating,
		Complexity:      "simple",
		EstimatedSteps:  1,
		Confidence:      0.9,
		AnalysisMethod:  "pattern",
	}
	for _, cue := range stateCues {
		if cue.re.MatchString(query) {
			intent.RequiresFiltering = true
			intent.FilterConditions = append(intent.FilterConditions, models.Filter{
				Field: "lifecycle_state", Operator: "equals", Value: cue.value,
			})
		}
	}
	if mutating {
		intent.ExecutionType = models.ExecMultiStep
		intent.Complexity = "moderate"
	} else {
		intent.ExecutionType = models.ExecDirectFetch
	}
	return intent, true
}

// llmAnalyze is the slow path.
func (a *Analyzer) llmAnalyze(ctx context.Context, st *models.TurnState, query string) *models.Intent {
	text, err := a.prompts.Render(prompt.IntentAnalyzer, map[string]any{"Query": query})
	if err != nil {
		slog.Error("Intent prompt render failed", "error", err)
		return unknownIntent()
	}
	answer := a.llm.Call(ctx, st, []gateway.Message{gateway.User(text)}, stageName, true)
	if gateway.IsErrorSentinel(answer) {
		return unknownIntent()
	}

	var intent models.Intent
	if err := json.Unmarshal([]byte(gateway.CleanJSON(answer)), &intent); err != nil {
		slog.Warn("Intent LM answer unparseable", "error", err)
		return unknownIntent()
	}
	intent.AnalysisMethod = "llm"
	intent.Action = strings.ToLower(strings.TrimSpace(intent.Action))
	switch intent.ExecutionType {
	case models.ExecDirectFetch, models.ExecMultiStep, models.ExecUnknown:
	default:
		intent.ExecutionType = models.ExecUnknown
	}
	// Mutations never ride the template fast path.
	if intent.IsMutating && intent.ExecutionType == models.ExecDirectFetch {
		intent.ExecutionType = models.ExecMultiStep
	}
	return &intent
}

func unknownIntent() *models.Intent {
	return &models.Intent{
		ExecutionType:  models.ExecUnknown,
		Confidence:     0.1,
		AnalysisMethod: "fallback",
	}
}
