package params

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Rule keywords of the RelocationRules file.
const (
	BetweenAssets  = "betweenAssets"  // betweenAssets,<prob>,<from>,<to>,{blocked assets}
	ToDistsInAsset = "toDistsInAsset" // toDistsInAsset,<from>,<to>,{dist indices},{split probs}
)

// ParseRelocationRules reads relocation rules, one per line. Blank lines and
// lines starting with '#' are skipped, as are lines with an unknown keyword.
func ParseRelocationRules(r io.Reader) (RelocationSpec, error) {
	var spec RelocationSpec
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		head, groups, err := splitRule(line)
		if err != nil {
			return spec, fmt.Errorf("%w: rule line %d: %v", ErrMalformed, lineNo, err)
		}
		switch head[0] {
		case BetweenAssets:
			rule, err := parseBetweenAssets(head, groups)
			if err != nil {
				return spec, fmt.Errorf("%w: rule line %d: %v", ErrMalformed, lineNo, err)
			}
			spec.Rules = append(spec.Rules, rule)
		case ToDistsInAsset:
			route, err := parseToDistsInAsset(head, groups)
			if err != nil {
				return spec, fmt.Errorf("%w: rule line %d: %v", ErrMalformed, lineNo, err)
			}
			spec.Routes = append(spec.Routes, route)
		default:
			logrus.Warnf("relocation rules: skipping line %d with unknown keyword %q", lineNo, head[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return spec, fmt.Errorf("reading relocation rules: %w", err)
	}
	return spec, nil
}

// splitRule separates the comma-separated fields before the first '{' from the
// contents of each {...} group.
func splitRule(line string) ([]string, [][]string, error) {
	brace := strings.IndexByte(line, '{')
	prefix := line
	if brace >= 0 {
		prefix = line[:brace]
	}
	var head []string
	for _, f := range strings.Split(prefix, ",") {
		if f = strings.TrimSpace(f); f != "" {
			head = append(head, f)
		}
	}
	if len(head) == 0 {
		return nil, nil, fmt.Errorf("missing keyword")
	}

	var groups [][]string
	rest := line[len(prefix):]
	for {
		rest = strings.TrimLeft(rest, ", \t")
		if rest == "" {
			break
		}
		if rest[0] != '{' {
			return nil, nil, fmt.Errorf("unexpected %q after set", rest)
		}
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return nil, nil, fmt.Errorf("unterminated set")
		}
		var items []string
		for _, f := range strings.Split(rest[1:end], ",") {
			if f = strings.TrimSpace(f); f != "" {
				items = append(items, f)
			}
		}
		groups = append(groups, items)
		rest = rest[end+1:]
	}
	return head, groups, nil
}

func parseBetweenAssets(head []string, groups [][]string) (RuleSpec, error) {
	var rule RuleSpec
	if len(head) != 4 || len(groups) != 1 {
		return rule, fmt.Errorf("%s wants 3 fields and 1 set, got %d and %d", BetweenAssets, len(head)-1, len(groups))
	}
	var err error
	if rule.Probability, err = strconv.ParseFloat(head[1], 64); err != nil {
		return rule, fmt.Errorf("probability: %v", err)
	}
	if rule.From, err = strconv.Atoi(head[2]); err != nil {
		return rule, fmt.Errorf("source asset: %v", err)
	}
	if rule.To, err = strconv.Atoi(head[3]); err != nil {
		return rule, fmt.Errorf("destination asset: %v", err)
	}
	if rule.Blocked, err = parseInts(groups[0]); err != nil {
		return rule, fmt.Errorf("blocked set: %v", err)
	}
	return rule, nil
}

func parseToDistsInAsset(head []string, groups [][]string) (RouteSpec, error) {
	var route RouteSpec
	if len(head) != 3 || len(groups) != 2 {
		return route, fmt.Errorf("%s wants 2 fields and 2 sets, got %d and %d", ToDistsInAsset, len(head)-1, len(groups))
	}
	var err error
	if route.From, err = strconv.Atoi(head[1]); err != nil {
		return route, fmt.Errorf("source asset: %v", err)
	}
	if route.To, err = strconv.Atoi(head[2]); err != nil {
		return route, fmt.Errorf("destination asset: %v", err)
	}
	if route.Dists, err = parseInts(groups[0]); err != nil {
		return route, fmt.Errorf("distribution indices: %v", err)
	}
	if route.Probs, err = parseFloats(groups[1]); err != nil {
		return route, fmt.Errorf("split probabilities: %v", err)
	}
	return route, nil
}

// FormatRelocationRules writes spec in the RelocationRules line format.
func FormatRelocationRules(w io.Writer, spec RelocationSpec) error {
	bw := bufio.NewWriter(w)
	for _, r := range spec.Rules {
		fmt.Fprintf(bw, "%s,%s,%d,%d,{%s}\n", BetweenAssets,
			strconv.FormatFloat(r.Probability, 'g', -1, 64), r.From, r.To, joinInts(r.Blocked))
	}
	for _, r := range spec.Routes {
		fmt.Fprintf(bw, "%s,%d,%d,{%s},{%s}\n", ToDistsInAsset, r.From, r.To, joinInts(r.Dists), joinFloats(r.Probs))
	}
	return bw.Flush()
}

func parseInts(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, f := range fields {
		// Integer-valued decimals such as "1.0" are accepted.
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || v != float64(int(v)) {
			return nil, fmt.Errorf("%q is not an integer", f)
		}
		out[i] = int(v)
	}
	return out, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", f)
		}
		out[i] = v
	}
	return out, nil
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
