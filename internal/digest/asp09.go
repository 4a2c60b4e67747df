package digest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/aorta/internal/models"
)

// Newlines with the indentation of the asp09 template.
const (
	joiner      = "\n      "
	innerJoiner = "\n        "
)

// asp09Test describes how one test of the asp09 procedure is summarized.
type asp09Test struct {
	name string
	// pkg marks tests that wrap a third-party package; their failures are
	// listed inline instead of under a summary heading.
	pkg      bool
	failures func(d *asp09Data) []string
	// failText overrides the generic failure paragraph.
	failText func(d *asp09Data, score string) string
}

var asp09Tests = []asp09Test{
	{name: "aatt", pkg: true, failures: aattFailures},
	{name: "axe", pkg: true, failures: axeFailures},
	{name: "ibm", pkg: true, failures: ibmFailures},
	{name: "wave", pkg: true, failures: waveFailures},
	{name: "bulk", failText: bulkFailText},
	{name: "embAc", failures: totalsOf("embAc", "totals")},
	{name: "focAll", failures: totalsOf("focAll")},
	{name: "focInd", failures: pickedTotals("focInd", map[string][]string{
		"indicatorMissing":  {"totals", "types", "indicatorMissing", "total"},
		"nonOutlinePresent": {"totals", "types", "nonOutlinePresent", "total"},
	})},
	{name: "focOp", failures: pickedTotals("focOp", map[string][]string{
		"onlyFocusable": {"totals", "types", "onlyFocusable", "total"},
		"onlyOperable":  {"totals", "types", "onlyOperable", "total"},
	})},
	{name: "hover", failures: totalsOf("hover", "totals")},
	{name: "labClash", failures: totalsWithout("labClash", []string{"totals"}, "wellLabeled")},
	{name: "linkUl", failures: totalsOf("linkUl", "totals", "inline")},
	{name: "log", failures: logFailures},
	{name: "menuNav", failures: pickedTotals("menuNav", map[string][]string{
		"navigations": {"totals", "navigations", "all", "incorrect"},
		"menuItems":   {"totals", "menuItems", "incorrect"},
		"menus":       {"totals", "menus", "incorrect"},
	})},
	{name: "motion", failures: totalsOf("motion")},
	{name: "radioSet", failures: totalsOf("radioSet", "totals")},
	{name: "role", failures: totalsWithout("role", nil, "tagNames")},
	{name: "styleDiff", failures: styleDiffFailures},
	{name: "tabNav", failures: pickedTotals("tabNav", map[string][]string{
		"navigations": {"totals", "navigations", "all", "incorrect"},
		"tabElements": {"totals", "tabElements", "incorrect"},
		"tabLists":    {"totals", "tabLists", "incorrect"},
	})},
	{name: "zIndex", failures: totalsOf("zIndex", "totals", "tagNames")},
}

type asp09Data struct {
	report     map[string]any
	fileName   string
	deficit    map[string]any
	inferences map[string]any
	tests      map[string]map[string]any
}

// ASP09 is the digester of the asp09 accessibility procedure. It reads the
// report's host, end time, score deficits and per-test results.
func ASP09(report map[string]any, values map[string]string) error {
	id, _ := report["id"].(string)
	endTime, _ := report["endTime"].(string)
	if len(endTime) < 10 {
		return fmt.Errorf("%w: 'endTime'", models.ErrMissingField)
	}
	deficit := objectAt(report, "score", "deficit")
	if deficit == nil {
		return fmt.Errorf("%w: 'score.deficit'", models.ErrMissingField)
	}
	inferences := objectAt(report, "score", "inferences")
	if inferences == nil {
		inferences = map[string]any{}
	}

	d := &asp09Data{
		report:     report,
		fileName:   id + ".json",
		deficit:    deficit,
		inferences: inferences,
		tests:      testResults(report),
	}

	values["dateISO"] = endTime[:10]
	values["dateSlash"] = strings.ReplaceAll(values["dateISO"], "-", "/")
	values["reportID"] = id
	values["scoreProc"] = "asp09"
	values["org"] = EscapeHTML(stringAt(report, "host", "what"))
	values["url"] = EscapeHTML(stringAt(report, "host", "which"))
	values["totalScore"] = formatValue(deficit["total"])
	values["deficitRows"] = d.deficitRows()
	values["scoreTable"] = scoreTable(deficit)

	for _, test := range asp09Tests {
		values[test.name+"Result"] = d.result(test)
	}

	return nil
}

func (d *asp09Data) result(test asp09Test) string {
	if isNonZero(d.deficit[test.name]) {
		score := formatValue(d.deficit[test.name])
		if test.failText != nil {
			return test.failText(d, score)
		}
		var items []string
		if test.failures != nil {
			items = test.failures(d)
		}
		if test.pkg {
			return d.packageFailText(score, test.name, items)
		}
		return d.customFailText(score, test.name) + joiner + listText("Summary of the details:", items)
	}
	if isNonZero(d.inferences[test.name]) {
		return fmt.Sprintf("<p>The <code>%s</code> test could not be performed. The page received an inferred score of %s on <code>%s</code>.</p>",
			test.name, formatValue(d.inferences[test.name]), test.name)
	}
	return fmt.Sprintf("<p>The page <strong>passed</strong> the <code>%s</code> test.</p>", test.name)
}

func (d *asp09Data) packageFailText(score, name string, items []string) string {
	return fmt.Sprintf(`<p>The page <strong>did not pass</strong> the <code>%[2]s</code> test and received a score of %[1]s on <code>%[2]s</code>. The details are in the <a href="../jsonReports/%[3]s">JSON-format file</a>, in the section starting with <code>"which": "%[2]s"</code>. There was at least one failure of:</p>`,
		score, name, d.fileName) + joiner + "<ul>" + innerJoiner + strings.Join(items, innerJoiner) + joiner + "</ul>"
}

func (d *asp09Data) customFailText(score, name string) string {
	return fmt.Sprintf(`<p>The page <strong>did not pass</strong> the <code>%[2]s</code> test and received a score of %[1]s on <code>%[2]s</code>. The details are in the <a href="../jsonReports/%[3]s">JSON-format file</a>, in the section starting with <code>"which": "%[2]s"</code>.</p>`,
		score, name, d.fileName)
}

func listText(heading string, items []string) string {
	return "<p>" + heading + "</p>" + joiner + "<ul>" + innerJoiner + strings.Join(items, innerJoiner) + joiner + "</ul>"
}

// deficitRows renders deficits and inferences as table rows, largest first.
func (d *asp09Data) deficitRows() string {
	merged := map[string]float64{}
	for k, v := range d.deficit {
		merged[k] = toFloat(v)
	}
	for k, v := range d.inferences {
		merged[k] = toFloat(v)
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.SliceStable(names, func(i, j int) bool {
		if merged[names[i]] != merged[names[j]] {
			return merged[names[i]] > merged[names[j]]
		}
		return names[i] < names[j]
	})

	rows := make([]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, fmt.Sprintf("<tr><th>%s</th><td>%s</td></tr>", name, formatValue(merged[name])))
	}
	return strings.Join(rows, innerJoiner)
}

// scoreTable is the indented deficit object with JSON punctuation removed.
func scoreTable(deficit map[string]any) string {
	data, err := json.MarshalIndent(deficit, "", "  ")
	if err != nil {
		return ""
	}
	s := strings.TrimPrefix(string(data), "{\n")
	return strings.NewReplacer("}", "", `"`, "", ",", "").Replace(s)
}

// testResults indexes the results of the report's test acts by test name.
func testResults(report map[string]any) map[string]map[string]any {
	results := map[string]map[string]any{}
	acts, _ := report["acts"].([]any)
	for _, a := range acts {
		act, ok := a.(map[string]any)
		if !ok || act["type"] != "test" {
			continue
		}
		which, _ := act["which"].(string)
		result, _ := act["result"].(map[string]any)
		if which != "" && result != nil {
			results[which] = result
		}
	}
	return results
}

func aattFailures(d *asp09Data) []string {
	raw, _ := d.report["acts"].([]any)
	var items []any
	for _, a := range raw {
		if act, ok := a.(map[string]any); ok && act["which"] == "aatt" {
			items, _ = act["result"].([]any)
		}
	}

	var warnings, errs []string
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		msg, _ := m["msg"].(string)
		switch m["type"] {
		case "warning":
			warnings = append(warnings, "warning: "+msg)
		case "error":
			errs = append(errs, "error: "+msg)
		}
	}

	var out []string
	for _, s := range dedupe(append(dedupe(warnings), dedupe(errs)...)) {
		out = append(out, "<li>"+EscapeHTML(s)+"</li>")
	}
	return out
}

func axeFailures(d *asp09Data) []string {
	items, _ := valueAt(d.tests["axe"], "items").([]any)
	var out []string
	for _, it := range items {
		m, _ := it.(map[string]any)
		rule, _ := m["rule"].(string)
		desc, _ := m["description"].(string)
		out = append(out, fmt.Sprintf("<li>%s: %s</li>", rule, EscapeHTML(desc)))
	}
	return out
}

func ibmFailures(d *asp09Data) []string {
	var items []any
	for _, part := range []string{"content", "url"} {
		if list, ok := valueAt(d.tests["ibm"], part, "items").([]any); ok {
			items = append(items, list...)
		}
	}
	var out []string
	for _, it := range items {
		m, _ := it.(map[string]any)
		ruleID, _ := m["ruleId"].(string)
		msg, _ := m["message"].(string)
		out = append(out, fmt.Sprintf("<li>%s: %s</li>", ruleID, EscapeHTML(msg)))
	}
	return dedupe(out)
}

func waveFailures(d *asp09Data) []string {
	var out []string
	for _, category := range []string{"error", "contrast", "alert"} {
		items, _ := valueAt(d.tests["wave"], "categories", category, "items").(map[string]any)
		for _, name := range sortedKeys(items) {
			desc := stringAt(items, name, "description")
			out = append(out, fmt.Sprintf("<li>%s/%s: %s</li>", category, name, desc))
		}
	}
	return out
}

func bulkFailText(d *asp09Data, score string) string {
	count := formatValue(valueAt(d.tests["bulk"], "visibleElements"))
	return fmt.Sprintf("<p>The page <strong>did not pass</strong> the <code>bulk</code> test. The count of visible elements in the page was %s, resulting in a score of %s on <code>bulk</code>.</p>", count, score)
}

func logFailures(d *asp09Data) []string {
	fields := []string{"logCount", "logSize", "visitRejectionCount", "prohibitedCount", "visitTimeoutCount"}
	stats := map[string]any{}
	for _, f := range fields {
		stats[f] = d.report[f]
	}
	return entryItems(stats)
}

func styleDiffFailures(d *asp09Data) []string {
	totals, _ := valueAt(d.tests["styleDiff"], "totals").(map[string]any)
	counts := map[string]any{}
	for key, v := range totals {
		count := 1
		if data, ok := v.(map[string]any); ok {
			if subtotals, ok := data["subtotals"].([]any); ok {
				count = len(subtotals)
			}
		}
		if count == 1 {
			counts[key] = "1 style"
		} else {
			counts[key] = fmt.Sprintf("%d different styles", count)
		}
	}
	return entryItems(counts)
}

// totalsOf lists the entries of the object at path inside a test result.
func totalsOf(test string, path ...string) func(d *asp09Data) []string {
	return func(d *asp09Data) []string {
		obj, _ := valueAt(d.tests[test], path...).(map[string]any)
		return entryItems(obj)
	}
}

// totalsWithout is totalsOf minus one key.
func totalsWithout(test string, path []string, drop string) func(d *asp09Data) []string {
	return func(d *asp09Data) []string {
		obj, _ := valueAt(d.tests[test], path...).(map[string]any)
		kept := make(map[string]any, len(obj))
		for k, v := range obj {
			if k != drop {
				kept[k] = v
			}
		}
		return entryItems(kept)
	}
}

// pickedTotals lists named values drawn from paths inside a test result.
func pickedTotals(test string, picks map[string][]string) func(d *asp09Data) []string {
	return func(d *asp09Data) []string {
		obj := make(map[string]any, len(picks))
		for label, path := range picks {
			obj[label] = valueAt(d.tests[test], path...)
		}
		return entryItems(obj)
	}
}

func entryItems(obj map[string]any) []string {
	out := make([]string, 0, len(obj))
	for _, k := range sortedKeys(obj) {
		out = append(out, fmt.Sprintf("<li>%s: %s</li>", k, formatValue(obj[k])))
	}
	return out
}

func valueAt(m map[string]any, path ...string) any {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}

func objectAt(m map[string]any, path ...string) map[string]any {
	obj, _ := valueAt(m, path...).(map[string]any)
	return obj
}

func stringAt(m map[string]any, path ...string) string {
	s, _ := valueAt(m, path...).(string)
	return s
}

// formatValue renders a decoded JSON value the way a browser script would
// print it.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return EscapeHTML(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ", ")
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return EscapeHTML(string(data))
	}
}

func isNonZero(v any) bool {
	return toFloat(v) != 0
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	default:
		return 0
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}
